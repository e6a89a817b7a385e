package feed

import (
	"sync/atomic"
	"testing"

	"github.com/dep2p/go-multicore/internal/core/storage/engine"
	"github.com/dep2p/go-multicore/internal/core/storage/engine/badger"
	"github.com/dep2p/go-multicore/internal/core/storage/kv"
	"github.com/dep2p/go-multicore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWritable(t *testing.T) (*Feed, *KeyPair) {
	t.Helper()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	f, err := Create(kp, NewMemoryStorage())
	require.NoError(t, err)
	return f, kp
}

func TestDiscoveryKey_Deterministic(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	a := DiscoveryKey(kp.Public)
	b := DiscoveryKey(kp.Public)
	assert.Equal(t, a, b)
	assert.NotEqual(t, types.DiscoveryKey(kp.Public), a, "发现密钥不能等于公钥")
}

func TestKeyPair_RoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	restored, err := KeyPairFromHex(kp.SecretHex())
	require.NoError(t, err)
	assert.Equal(t, kp.Public, restored.Public)

	_, err = KeyPairFromHex("abcd")
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestFeed_AppendGet(t *testing.T) {
	f, _ := newWritable(t)
	assert.True(t, f.Writable())

	n, err := f.Append([]byte("a"), []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	v, err := f.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "b", string(v))

	_, err = f.Get(2)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, f.Verify())
}

func TestFeed_ReadOnlyCannotAppend(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	f, err := Open(kp.Public, nil)
	require.NoError(t, err)

	_, err = f.Append([]byte("x"))
	assert.ErrorIs(t, err, ErrNotWritable)
}

func TestFeed_PutRemote(t *testing.T) {
	src, kp := newWritable(t)
	_, err := src.Append([]byte("one"), []byte("two"), []byte("three"))
	require.NoError(t, err)

	dst, err := Open(kp.Public, NewMemoryStorage())
	require.NoError(t, err)

	e1, err := src.Entry(1)
	require.NoError(t, err)
	_, err = dst.PutRemote(e1)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	for i := uint64(0); i < src.Len(); i++ {
		e, err := src.Entry(i)
		require.NoError(t, err)
		ok, err := dst.PutRemote(e)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, uint64(3), dst.Len())
	assert.NoError(t, dst.Verify())

	// 重复条目被忽略
	e0, err := src.Entry(0)
	require.NoError(t, err)
	ok, err := dst.PutRemote(e0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFeed_PutRemoteRejectsForgery(t *testing.T) {
	_, kp := newWritable(t)
	dst, err := Open(kp.Public, nil)
	require.NoError(t, err)

	other, _ := newWritable(t)
	_, err = other.Append([]byte("forged"))
	require.NoError(t, err)
	e, err := other.Entry(0)
	require.NoError(t, err)

	_, err = dst.PutRemote(e)
	assert.ErrorIs(t, err, ErrBadSignature)
	assert.Equal(t, uint64(0), dst.Len())
}

func TestFeed_SetKey(t *testing.T) {
	src, kp := newWritable(t)
	_, err := src.Append([]byte("x"))
	require.NoError(t, err)

	f, err := OpenDiscoveryKey(DiscoveryKey(kp.Public), nil)
	require.NoError(t, err)
	_, ok := f.Key()
	assert.False(t, ok)

	e, err := src.Entry(0)
	require.NoError(t, err)
	_, err = f.PutRemote(e)
	assert.ErrorIs(t, err, ErrKeyUnknown)

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.ErrorIs(t, f.SetKey(other.Public), ErrKeyMismatch)

	require.NoError(t, f.SetKey(kp.Public))
	require.NoError(t, f.SetKey(kp.Public))
	ok, err = f.PutRemote(e)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFeed_Authorize(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	f, err := Open(kp.Public, nil)
	require.NoError(t, err)
	require.False(t, f.Writable())

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.ErrorIs(t, f.Authorize(other), ErrKeyMismatch)

	require.NoError(t, f.Authorize(kp))
	assert.True(t, f.Writable())
	_, err = f.Append([]byte("now writable"))
	assert.NoError(t, err)
}

func TestFeed_OnAppend(t *testing.T) {
	f, _ := newWritable(t)

	var last atomic.Uint64
	cancel := f.OnAppend(func(n uint64) { last.Store(n) })

	_, err := f.Append([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last.Load())

	cancel()
	_, err = f.Append([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last.Load())
}

func TestFeed_KVStoragePersists(t *testing.T) {
	eng, err := badger.New(engine.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	defer eng.Close()

	store := kv.New(eng, []byte("f/"))
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	dk := DiscoveryKey(kp.Public)

	f, err := Create(kp, NewKVStorage(store, dk))
	require.NoError(t, err)
	_, err = f.Append([]byte("persisted"), []byte("twice"))
	require.NoError(t, err)

	// 只凭发现密钥重新打开，公钥从元数据恢复
	reopened, err := OpenDiscoveryKey(dk, NewKVStorage(store, dk))
	require.NoError(t, err)
	key, ok := reopened.Key()
	require.True(t, ok)
	assert.Equal(t, kp.Public, key)
	assert.Equal(t, uint64(2), reopened.Len())

	v, err := reopened.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(v))
	assert.NoError(t, reopened.Verify())
}
