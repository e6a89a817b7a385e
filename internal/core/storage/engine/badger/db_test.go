package badger

import (
	"path/filepath"
	"testing"

	"github.com/dep2p/go-multicore/internal/core/storage/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiskEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(engine.DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	require.NoError(t, eng.Start())
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func newMemoryEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(engine.MemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestEngine_PutGetDelete(t *testing.T) {
	for name, eng := range map[string]*Engine{
		"disk":   newDiskEngine(t),
		"memory": newMemoryEngine(t),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, eng.Put([]byte("k"), []byte("v")))

			v, err := eng.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), v)

			ok, err := eng.Has([]byte("k"))
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, eng.Delete([]byte("k")))
			_, err = eng.Get([]byte("k"))
			assert.True(t, engine.IsNotFound(err))

			ok, err = eng.Has([]byte("k"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestEngine_EmptyKey(t *testing.T) {
	eng := newMemoryEngine(t)
	assert.ErrorIs(t, eng.Put(nil, []byte("v")), engine.ErrEmptyKey)
	_, err := eng.Get(nil)
	assert.ErrorIs(t, err, engine.ErrEmptyKey)
}

func TestEngine_Batch(t *testing.T) {
	eng := newMemoryEngine(t)

	b := eng.NewBatch()
	b.Put([]byte("a/1"), []byte("1"))
	b.Put([]byte("a/2"), []byte("2"))

	_, err := eng.Get([]byte("a/1"))
	assert.True(t, engine.IsNotFound(err), "提交前不可见")

	require.NoError(t, b.Commit())

	v, err := eng.Get([]byte("a/2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestEngine_PrefixIterator(t *testing.T) {
	eng := newDiskEngine(t)

	require.NoError(t, eng.Put([]byte("x/2"), []byte("two")))
	require.NoError(t, eng.Put([]byte("x/1"), []byte("one")))
	require.NoError(t, eng.Put([]byte("y/1"), []byte("other")))

	it := eng.NewPrefixIterator([]byte("x/"))
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
		assert.NotNil(t, it.Value())
	}
	require.NoError(t, it.Error())
	assert.Equal(t, []string{"x/1", "x/2"}, keys)
}

func TestEngine_Closed(t *testing.T) {
	eng, err := New(engine.MemoryConfig())
	require.NoError(t, err)
	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	_, err = eng.Get([]byte("k"))
	assert.True(t, engine.IsClosed(err))
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, (&engine.Config{}).Validate())
	assert.NoError(t, engine.MemoryConfig().Validate())
	assert.NoError(t, engine.DefaultConfig("/tmp/x").Validate())
}
