package swarm

import (
	"testing"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/discovery"
	"github.com/dep2p/go-multicore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserData_RoundTrip(t *testing.T) {
	key := types.Key{1, 2, 3}
	name, got, err := ParseUserData(EncodeUserData("alice", key))
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.Equal(t, key, got)
}

func TestParseUserData_Rejects(t *testing.T) {
	cases := []struct {
		name string
		data string
		want error
	}{
		{"缺失", "", ErrMissingUserData},
		{"非 JSON", "not json", ErrMalformedUserData},
		{"缺少 key", `{"name":"bob"}`, ErrMalformedUserData},
		{"key 不是十六进制", `{"name":"bob","key":"zz"}`, ErrMalformedUserData},
		{"key 长度错误", `{"name":"bob","key":"abcd"}`, ErrMalformedUserData},
		{"key 类型错误", `{"name":"bob","key":42}`, ErrMalformedUserData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseUserData([]byte(tc.data))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseUserData_NameOptional(t *testing.T) {
	key := types.Key{9}
	name, got, err := ParseUserData([]byte(`{"key":"` + key.String() + `"}`))
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, key, got)
}

func TestDiscovererFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Swarm.EnableMDNS = false

	d, err := DiscovererFromUnified(cfg)
	require.NoError(t, err)
	assert.Nil(t, d)

	cfg.Swarm.Peers = []string{"127.0.0.1:4000"}
	d, err = DiscovererFromUnified(cfg)
	require.NoError(t, err)
	assert.IsType(t, &discovery.Static{}, d)

	cfg.Swarm.Enable = false
	d, err = DiscovererFromUnified(cfg)
	require.NoError(t, err)
	assert.Nil(t, d)
}
