package feed

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"sort"
	"sync"

	"github.com/dep2p/go-multicore/pkg/lib/log"
	"github.com/dep2p/go-multicore/pkg/types"
)

var logger = log.Logger("core/feed")

// Feed 单写者、只追加的签名日志
//
// 只有持有私钥的一方可以 Append；其他副本通过 PutRemote
// 接收按序到达、签名有效的条目。
type Feed struct {
	mu      sync.RWMutex
	key     types.Key
	hasKey  bool
	dkey    types.DiscoveryKey
	secret  ed25519.PrivateKey
	storage Storage
	length  uint64
	root    [32]byte

	listenerMu sync.Mutex
	listeners  map[uint64]func(length uint64)
	nextID     uint64
}

// Create 创建可写 feed
func Create(kp *KeyPair, st Storage) (*Feed, error) {
	f, err := Open(kp.Public, st)
	if err != nil {
		return nil, err
	}
	f.secret = kp.Secret
	return f, nil
}

// Open 以公钥打开只读 feed
func Open(key types.Key, st Storage) (*Feed, error) {
	f := newFeed(DiscoveryKey(key), st)
	f.key = key
	f.hasKey = true
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenDiscoveryKey 只以发现密钥打开 feed
//
// 公钥之后通过 SetKey 补齐；补齐之前无法接收远端条目。
// 存储中若已记录公钥则直接恢复。
func OpenDiscoveryKey(dk types.DiscoveryKey, st Storage) (*Feed, error) {
	f := newFeed(dk, st)
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func newFeed(dk types.DiscoveryKey, st Storage) *Feed {
	if st == nil {
		st = NewMemoryStorage()
	}
	return &Feed{
		dkey:      dk,
		storage:   st,
		listeners: make(map[uint64]func(uint64)),
	}
}

func (f *Feed) load() error {
	meta, err := f.storage.Load()
	if err != nil {
		return fmt.Errorf("load feed %s: %w", f.dkey.Short(), err)
	}
	if meta.Key != nil {
		if DiscoveryKey(*meta.Key) != f.dkey {
			return ErrKeyMismatch
		}
		if f.hasKey && f.key != *meta.Key {
			return ErrKeyMismatch
		}
		f.key = *meta.Key
		f.hasKey = true
	}
	f.length = meta.Length
	f.root = meta.Root
	return nil
}

func (f *Feed) metaLocked() Meta {
	m := Meta{Length: f.length, Root: f.root}
	if f.hasKey {
		k := f.key
		m.Key = &k
	}
	return m
}

// Key 返回公钥，未知时 ok 为 false
func (f *Feed) Key() (types.Key, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.key, f.hasKey
}

// DiscoveryKey 返回发现密钥
func (f *Feed) DiscoveryKey() types.DiscoveryKey {
	return f.dkey
}

// Writable 是否持有私钥
func (f *Feed) Writable() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.secret != nil
}

// Len 返回条目数
func (f *Feed) Len() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.length
}

// SetKey 为只有发现密钥的 feed 补齐公钥
//
// 公钥必须派生出同一发现密钥；已知公钥时只接受相同的值。
func (f *Feed) SetKey(key types.Key) error {
	if DiscoveryKey(key) != f.dkey {
		return ErrKeyMismatch
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hasKey {
		if f.key != key {
			return ErrKeyMismatch
		}
		return nil
	}
	f.key = key
	f.hasKey = true
	return f.storage.SaveMeta(f.metaLocked())
}

// Authorize 用私钥把只读 feed 升级为可写
func (f *Feed) Authorize(kp *KeyPair) error {
	if err := f.SetKey(kp.Public); err != nil {
		return err
	}
	f.mu.Lock()
	f.secret = kp.Secret
	f.mu.Unlock()
	return nil
}

// Append 追加条目，返回新的长度
func (f *Feed) Append(values ...[]byte) (uint64, error) {
	f.mu.Lock()
	if f.secret == nil {
		f.mu.Unlock()
		return 0, ErrNotWritable
	}
	for _, v := range values {
		root := chainRoot(f.root, v)
		e := Entry{
			Index:     f.length,
			Value:     append([]byte(nil), v...),
			Signature: sign(f.secret, root),
		}
		meta := f.metaLocked()
		meta.Length = f.length + 1
		meta.Root = root
		if err := f.storage.Append(e, meta); err != nil {
			f.mu.Unlock()
			return 0, fmt.Errorf("append to %s: %w", f.dkey.Short(), err)
		}
		f.length++
		f.root = root
	}
	length := f.length
	f.mu.Unlock()

	f.notify(length)
	return length, nil
}

// PutRemote 写入来自远端的条目
//
// 已存在的索引被忽略（返回 false, nil）；跳跃的索引返回 ErrOutOfOrder。
func (f *Feed) PutRemote(e Entry) (bool, error) {
	f.mu.Lock()
	if !f.hasKey {
		f.mu.Unlock()
		return false, ErrKeyUnknown
	}
	if e.Index < f.length {
		f.mu.Unlock()
		return false, nil
	}
	if e.Index > f.length {
		f.mu.Unlock()
		return false, ErrOutOfOrder
	}

	root := chainRoot(f.root, e.Value)
	if !verify(f.key, root, e.Signature) {
		f.mu.Unlock()
		return false, ErrBadSignature
	}

	meta := f.metaLocked()
	meta.Length = f.length + 1
	meta.Root = root
	stored := Entry{
		Index:     e.Index,
		Value:     append([]byte(nil), e.Value...),
		Signature: append([]byte(nil), e.Signature...),
	}
	if err := f.storage.Append(stored, meta); err != nil {
		f.mu.Unlock()
		return false, err
	}
	f.length++
	f.root = root
	length := f.length
	f.mu.Unlock()

	f.notify(length)
	return true, nil
}

// Get 读取条目内容
func (f *Feed) Get(index uint64) ([]byte, error) {
	e, err := f.Entry(index)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

// Entry 读取完整条目（含签名），用于向远端发送
func (f *Feed) Entry(index uint64) (Entry, error) {
	if index >= f.Len() {
		return Entry{}, ErrNotFound
	}
	return f.storage.Get(index)
}

// Verify 从头重放哈希链并校验最后一个签名
func (f *Feed) Verify() error {
	f.mu.RLock()
	key, hasKey, length, want := f.key, f.hasKey, f.length, f.root
	f.mu.RUnlock()

	if !hasKey {
		return ErrKeyUnknown
	}

	var root [32]byte
	var last Entry
	for i := uint64(0); i < length; i++ {
		e, err := f.storage.Get(i)
		if err != nil {
			return err
		}
		root = chainRoot(root, e.Value)
		last = e
	}
	if !bytes.Equal(root[:], want[:]) {
		return ErrCorrupted
	}
	if length > 0 && !verify(key, root, last.Signature) {
		return ErrBadSignature
	}
	return nil
}

// OnAppend 注册追加回调，返回取消函数
//
// 回调在追加者的 goroutine 上同步执行，此时 feed 锁已释放。
func (f *Feed) OnAppend(fn func(length uint64)) (cancel func()) {
	f.listenerMu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.listenerMu.Unlock()

	return func() {
		f.listenerMu.Lock()
		delete(f.listeners, id)
		f.listenerMu.Unlock()
	}
}

func (f *Feed) notify(length uint64) {
	f.listenerMu.Lock()
	ids := make([]uint64, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(uint64), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.listeners[id])
	}
	f.listenerMu.Unlock()

	for _, fn := range fns {
		fn(length)
	}
	logger.Debug("feed 追加", "dkey", f.dkey.Short(), "length", length)
}
