package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	valid := strings.Repeat("ab", KeySize)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", valid, false},
		{"empty", "", true},
		{"short", valid[:62], true},
		{"long", valid + "00", true},
		{"non-hex", strings.Repeat("zz", KeySize), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := ParseKey(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidKey)
				assert.True(t, k.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, k.String())
			assert.Equal(t, tt.input[:8], k.Short())
		})
	}
}

func TestParseDiscoveryKey(t *testing.T) {
	_, err := ParseDiscoveryKey("00")
	require.ErrorIs(t, err, ErrInvalidDiscoveryKey)

	dk, err := ParseDiscoveryKey(strings.Repeat("01", KeySize))
	require.NoError(t, err)
	assert.False(t, dk.IsZero())
}

func TestKey_JSON(t *testing.T) {
	var k Key
	k[0] = 0xff

	data, err := json.Marshal(struct {
		Key Key `json:"key"`
	}{k})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ff00`)

	var out struct {
		Key Key `json:"key"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, k, out.Key)
}

func TestKeyFromBytes(t *testing.T) {
	_, err := KeyFromBytes(make([]byte, 31))
	require.ErrorIs(t, err, ErrInvalidKey)

	b := make([]byte, KeySize)
	b[31] = 7
	k, err := KeyFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, b, k.Bytes())
}
