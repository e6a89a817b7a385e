package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignment(t *testing.T) {
	cases := []struct {
		in   string
		key  string
		want any
	}{
		{"title=hello", "title", "hello"},
		{"count=3", "count", float64(3)},
		{"done=true", "done", true},
		{`tags=["a","b"]`, "tags", []any{"a", "b"}},
		{"empty=", "empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			as, err := parseAssignment(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.key, as.key)
			assert.Equal(t, tc.want, as.value)
		})
	}

	_, err := parseAssignment("novalue")
	assert.Error(t, err)
	_, err = parseAssignment("=x")
	assert.Error(t, err)
}

func TestAssignments_Repeatable(t *testing.T) {
	var a assignments
	require.NoError(t, a.Set("a=1"))
	require.NoError(t, a.Set("b=x"))
	assert.Len(t, a, 2)
	assert.Equal(t, "a=1,b=x", a.String())
}

func TestParseDocKey(t *testing.T) {
	key, err := parseDocKey("")
	require.NoError(t, err)
	assert.Nil(t, key)

	key, err = parseDocKey(strings.Repeat("ab", 32))
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, strings.Repeat("ab", 32), key.String())

	_, err = parseDocKey("zz")
	assert.Error(t, err)
}
