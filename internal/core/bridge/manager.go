package bridge

import (
	"sort"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/internal/core/metrics"
	"github.com/dep2p/go-multicore/internal/core/multicore"
	"github.com/dep2p/go-multicore/internal/core/storage/kv"
	"github.com/dep2p/go-multicore/internal/core/swarm"
	"github.com/dep2p/go-multicore/pkg/lib/log"
	"github.com/dep2p/go-multicore/pkg/types"
)

var logger = log.Logger("core/bridge")

// HubFactory 为会话标识创建 multicore
type HubFactory func(key types.Key) (*multicore.Multicore, error)

// NewHubFactory 返回以 key 只读打开归档器的工厂
//
// feeds 非空时每个会话使用 feeds 下以会话标识为前缀的子空间，
// 否则使用内存存储。每个会话拥有独立的事件总线。
func NewHubFactory(base multicore.Options, feeds *kv.Store) HubFactory {
	return func(key types.Key) (*multicore.Multicore, error) {
		opts := base
		k := key
		opts.ArchiverKey = &k
		opts.ArchiverKeyPair = nil
		opts.Bus = nil
		if feeds != nil {
			opts.Storage = feed.KVStorageFactory(feeds.SubStore([]byte(key.String() + "/")))
		} else {
			opts.Storage = feed.MemoryStorageFactory()
		}
		return multicore.New(opts)
	}
}

// ManagerOption 管理器选项
type ManagerOption func(*Manager)

// WithSwarm 新建会话时加入 swarm，并把连接事件交给 Connector
func WithSwarm() ManagerOption {
	return func(m *Manager) {
		m.joinSwarm = true
	}
}

// WithMetrics 设置指标
func WithMetrics(b *metrics.Bridge) ManagerOption {
	return func(m *Manager) {
		m.metrics = b
	}
}

// Manager 会话标识到 multicore 的映射
//
// 首次引用某个标识时创建，之后一直复用，直到 Close。
// 同一标识的并发 Get 只创建一次。
type Manager struct {
	factory   HubFactory
	joinSwarm bool
	metrics   *metrics.Bridge

	group singleflight.Group

	mu     sync.RWMutex
	hubs   map[types.Key]*multicore.Multicore
	closed bool
}

// NewManager 创建管理器
func NewManager(factory HubFactory, opts ...ManagerOption) *Manager {
	m := &Manager{
		factory: factory,
		hubs:    make(map[types.Key]*multicore.Multicore),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get 返回 key 对应的 multicore，不存在时创建
//
// created 表示本次调用创建了新实例。
func (m *Manager) Get(key types.Key) (mc *multicore.Multicore, created bool, err error) {
	if mc, ok, err := m.lookup(key); err != nil || ok {
		return mc, false, err
	}

	v, err, _ := m.group.Do(key.String(), func() (interface{}, error) {
		if mc, ok, err := m.lookup(key); err != nil || ok {
			return mc, err
		}

		mc, err := m.create(key)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = mc.Close()
			return nil, ErrManagerClosed
		}
		m.hubs[key] = mc
		m.mu.Unlock()

		created = true
		return mc, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*multicore.Multicore), created, nil
}

func (m *Manager) lookup(key types.Key) (*multicore.Multicore, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrManagerClosed
	}
	mc, ok := m.hubs[key]
	return mc, ok, nil
}

func (m *Manager) create(key types.Key) (*multicore.Multicore, error) {
	mc, err := m.factory(key)
	if err != nil {
		logger.Warn("创建 multicore 失败", "key", key.Short(), "error", err)
		return nil, err
	}

	if m.joinSwarm {
		connector := swarm.NewConnector(mc.Archiver(), mc)
		if _, err := mc.JoinSwarm(connector.HandleConnection); err != nil {
			_ = mc.Close()
			logger.Warn("加入 swarm 失败", "key", key.Short(), "error", err)
			return nil, err
		}
	}

	if m.metrics != nil {
		m.metrics.HubCreated()
	}
	logger.Info("创建 multicore", "key", key.Short(), "swarm", m.joinSwarm)
	return mc, nil
}

// Lookup 返回已存在的 multicore
func (m *Manager) Lookup(key types.Key) (*multicore.Multicore, bool) {
	mc, ok, _ := m.lookup(key)
	return mc, ok
}

// Len 已创建的会话数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hubs)
}

// Keys 已创建会话的标识（按字典序）
func (m *Manager) Keys() []types.Key {
	m.mu.RLock()
	keys := make([]types.Key, 0, len(m.hubs))
	for k := range m.hubs {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Close 关闭所有 multicore
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	hubs := m.hubs
	m.hubs = make(map[types.Key]*multicore.Multicore)
	m.mu.Unlock()

	var err error
	for key, mc := range hubs {
		if cerr := mc.Close(); cerr != nil {
			logger.Warn("关闭 multicore 失败", "key", key.Short(), "error", cerr)
			err = multierr.Append(err, cerr)
		}
		if m.metrics != nil {
			m.metrics.HubClosed()
		}
	}
	logger.Info("会话管理器已关闭", "hubs", len(hubs))
	return err
}
