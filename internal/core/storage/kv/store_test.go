package kv

import (
	"testing"

	"github.com/dep2p/go-multicore/internal/core/storage/engine"
	"github.com/dep2p/go-multicore/internal/core/storage/engine/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore 创建测试用 KVStore（内存模式 badger）
func testStore(t *testing.T, prefix string) *Store {
	t.Helper()

	eng, err := badger.New(engine.MemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	return New(eng, []byte(prefix))
}

func TestStore_PrefixIsolation(t *testing.T) {
	s := testStore(t, "f/")
	other := New(s.engine, []byte("i/"))

	require.NoError(t, s.Put([]byte("k"), []byte("feed")))
	require.NoError(t, other.Put([]byte("k"), []byte("identity")))

	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "feed", string(v))

	v, err = other.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "identity", string(v))
}

func TestStore_JSON(t *testing.T) {
	s := testStore(t, "t/")

	type meta struct {
		Length uint64 `json:"length"`
	}
	require.NoError(t, s.PutJSON([]byte("m"), meta{Length: 3}))

	var got meta
	require.NoError(t, s.GetJSON([]byte("m"), &got))
	assert.Equal(t, uint64(3), got.Length)

	err := s.GetJSON([]byte("missing"), &got)
	assert.True(t, engine.IsNotFound(err))
}

func TestStore_String(t *testing.T) {
	s := testStore(t, "i/")
	require.NoError(t, s.PutString([]byte("key"), "abc"))

	v, err := s.GetString([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	ok, err := s.Has([]byte("key"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete([]byte("key")))
	ok, err = s.Has([]byte("key"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SubStoreScan(t *testing.T) {
	s := testStore(t, "f/")
	sub := s.SubStore([]byte("abc/"))

	b := sub.NewBatch()
	b.Put([]byte("e/1"), []byte("one"))
	b.Put([]byte("e/2"), []byte("two"))
	require.NoError(t, b.PutJSON([]byte("m"), map[string]int{"length": 2}))
	require.NoError(t, b.Commit())

	var keys []string
	require.NoError(t, sub.PrefixScan([]byte("e/"), func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	assert.Equal(t, []string{"e/1", "e/2"}, keys)

	v, err := s.Get([]byte("abc/e/2"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(v))
}
