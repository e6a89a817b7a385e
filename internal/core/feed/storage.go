package feed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dep2p/go-multicore/internal/core/storage/engine"
	"github.com/dep2p/go-multicore/internal/core/storage/kv"
	"github.com/dep2p/go-multicore/pkg/types"
)

// Entry feed 条目
type Entry struct {
	Index     uint64 `json:"index"`
	Value     []byte `json:"value"`
	Signature []byte `json:"signature"`
}

// Meta feed 元数据
type Meta struct {
	Length uint64     `json:"length"`
	Root   [32]byte   `json:"root"`
	Key    *types.Key `json:"key,omitempty"`
}

// Storage feed 持久化
//
// Append 必须把条目与新的元数据作为一个原子单元写入。
type Storage interface {
	Load() (Meta, error)
	Append(e Entry, meta Meta) error
	SaveMeta(meta Meta) error
	Get(index uint64) (Entry, error)
}

// StorageFactory 按发现密钥打开 feed 存储
type StorageFactory func(dk types.DiscoveryKey) (Storage, error)

// ============================================================================
//                              MemoryStorage
// ============================================================================

// MemoryStorage 内存存储，进程退出后丢失
type MemoryStorage struct {
	mu      sync.RWMutex
	meta    Meta
	entries []Entry
}

// NewMemoryStorage 创建内存存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// MemoryStorageFactory 每个 feed 一个独立的内存存储
func MemoryStorageFactory() StorageFactory {
	return func(types.DiscoveryKey) (Storage, error) {
		return NewMemoryStorage(), nil
	}
}

// Load 读取元数据
func (s *MemoryStorage) Load() (Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, nil
}

// Append 追加条目
func (s *MemoryStorage) Append(e Entry, meta Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Index != uint64(len(s.entries)) {
		return ErrOutOfOrder
	}
	s.entries = append(s.entries, e)
	s.meta = meta
	return nil
}

// SaveMeta 保存元数据
func (s *MemoryStorage) SaveMeta(meta Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	return nil
}

// Get 读取条目
func (s *MemoryStorage) Get(index uint64) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index >= uint64(len(s.entries)) {
		return Entry{}, ErrNotFound
	}
	return s.entries[index], nil
}

// ============================================================================
//                              KVStorage
// ============================================================================

// KVStorage 基于 kv.Store 的持久化存储
//
// 键布局（相对 feed 键空间）：
//
//	<dkey hex>/m        元数据 JSON
//	<dkey hex>/e/<u64>  条目 JSON，索引为大端序
type KVStorage struct {
	store *kv.Store
}

// NewKVStorage 在 store 下为单个 feed 创建存储
func NewKVStorage(store *kv.Store, dk types.DiscoveryKey) *KVStorage {
	return &KVStorage{store: store.SubStore([]byte(dk.String() + "/"))}
}

// KVStorageFactory 所有 feed 共享同一个 kv 键空间
func KVStorageFactory(store *kv.Store) StorageFactory {
	return func(dk types.DiscoveryKey) (Storage, error) {
		return NewKVStorage(store, dk), nil
	}
}

var metaKey = []byte("m")

func entryKey(index uint64) []byte {
	k := make([]byte, 2+8)
	copy(k, "e/")
	binary.BigEndian.PutUint64(k[2:], index)
	return k
}

// Load 读取元数据，不存在时返回空 feed
func (s *KVStorage) Load() (Meta, error) {
	var meta Meta
	err := s.store.GetJSON(metaKey, &meta)
	if engine.IsNotFound(err) {
		return Meta{}, nil
	}
	return meta, err
}

// Append 在同一批量写中提交条目与元数据
func (s *KVStorage) Append(e Entry, meta Meta) error {
	b := s.store.NewBatch()
	if err := b.PutJSON(entryKey(e.Index), e); err != nil {
		return err
	}
	if err := b.PutJSON(metaKey, meta); err != nil {
		return err
	}
	return b.Commit()
}

// SaveMeta 保存元数据
func (s *KVStorage) SaveMeta(meta Meta) error {
	return s.store.PutJSON(metaKey, meta)
}

// Get 读取条目
func (s *KVStorage) Get(index uint64) (Entry, error) {
	var e Entry
	err := s.store.GetJSON(entryKey(index), &e)
	if errors.Is(err, engine.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read entry %d: %w", index, err)
	}
	return e, nil
}
