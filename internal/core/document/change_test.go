package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyChange_MergeOrderDecidesConflicts(t *testing.T) {
	a := Change{Actor: "aa", Seq: 1, Clock: 2, Ops: []Op{{Action: ActionSet, Path: []string{"k"}, Value: "a"}}}
	b := Change{Actor: "bb", Seq: 1, Clock: 2, Ops: []Op{{Action: ActionSet, Path: []string{"k"}, Value: "b"}}}

	for _, order := range [][]Change{{a, b}, {b, a}} {
		cs := append([]Change(nil), order...)
		sortChanges(cs)
		state := map[string]any{}
		for _, c := range cs {
			require.NoError(t, applyChange(state, c))
		}
		assert.Equal(t, "b", state["k"])
	}
}

func TestApplyChange_InvalidOps(t *testing.T) {
	state := map[string]any{"leaf": "x"}
	c := Change{Actor: "aa", Seq: 1, Ops: []Op{
		{Action: ActionSet, Path: nil, Value: 1},
		{Action: ActionSet, Path: []string{"leaf", "child"}, Value: 1},
		{Action: "rename", Path: []string{"y"}},
		{Action: ActionSet, Path: []string{"ok"}, Value: 1},
		{Action: ActionDel, Path: []string{"missing", "x"}},
	}}

	err := applyChange(state, c)
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.Equal(t, float64(1), state["ok"])
	assert.Equal(t, "x", state["leaf"])
}

func TestChange_Encoding(t *testing.T) {
	c := Change{Actor: "aa", Seq: 3, Clock: 7, Deps: map[string]uint64{"bb": 2}, Ops: []Op{{Action: ActionMkMap, Path: []string{"m"}}}}
	data, err := c.encode()
	require.NoError(t, err)

	got, err := decodeChange(data)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = decodeChange([]byte("{"))
	assert.Error(t, err)
}
