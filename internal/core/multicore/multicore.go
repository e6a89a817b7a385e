// Package multicore 组合归档器、事件总线与 swarm
//
// 一个 Multicore 对应一个会话标识（归档器公钥）：它拥有归档器，
// 按需加入以归档器发现密钥命名的 swarm，并在进程内发布 actor 宣告。
package multicore

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-multicore/internal/core/archiver"
	"github.com/dep2p/go-multicore/internal/core/discovery"
	"github.com/dep2p/go-multicore/internal/core/eventbus"
	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/internal/core/replication"
	"github.com/dep2p/go-multicore/internal/core/swarm"
	pkgif "github.com/dep2p/go-multicore/pkg/interfaces"
	"github.com/dep2p/go-multicore/pkg/lib/log"
	"github.com/dep2p/go-multicore/pkg/types"
)

var logger = log.Logger("core/multicore")

// Options 构造选项
type Options struct {
	// Bus 事件总线，为空时内部创建
	Bus pkgif.EventBus

	// Storage feed 存储，默认内存
	Storage feed.StorageFactory

	// ArchiverKey 以只读方式打开已有归档器
	ArchiverKey *types.Key

	// ArchiverKeyPair 以可写方式打开归档器；两者都为空时新建
	ArchiverKeyPair *feed.KeyPair

	// Discoverer JoinSwarm 使用的发现器，为空时只接受入站连接
	Discoverer discovery.Discoverer

	// Swarm swarm 配置
	Swarm swarm.Config

	// UserData 随 swarm 握手发送的身份数据
	UserData []byte

	// Replication 复制会话默认参数
	Replication replication.Options
}

// Multicore 单个会话的 feed 集合及其网络
type Multicore struct {
	opts     Options
	archiver *archiver.Archiver
	bus      pkgif.EventBus
	emitter  pkgif.Emitter

	mu      sync.Mutex
	swarm   *swarm.Swarm
	feedSub pkgif.Subscription
	closed  bool
	wg      sync.WaitGroup
}

// New 创建 Multicore
func New(opts Options) (*Multicore, error) {
	if opts.Bus == nil {
		opts.Bus = eventbus.NewBus()
	}
	if opts.Swarm == (swarm.Config{}) {
		opts.Swarm = swarm.DefaultConfig()
	}

	a, err := archiver.New(archiver.Options{
		ChangesKey:     opts.ArchiverKey,
		ChangesKeyPair: opts.ArchiverKeyPair,
		Storage:        opts.Storage,
		Bus:            opts.Bus,
		Replication:    opts.Replication,
	})
	if err != nil {
		return nil, fmt.Errorf("open archiver: %w", err)
	}

	em, err := opts.Bus.Emitter(new(types.EvtAnnounceActor))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	return &Multicore{
		opts:     opts,
		archiver: a,
		bus:      opts.Bus,
		emitter:  em,
	}, nil
}

// Archiver 返回归档器
func (m *Multicore) Archiver() *archiver.Archiver {
	return m.archiver
}

// Key 归档器公钥，即会话标识
func (m *Multicore) Key() types.Key {
	return m.archiver.Key()
}

// Ready 归档器就绪后关闭
func (m *Multicore) Ready() <-chan struct{} {
	return m.archiver.Ready()
}

// Bus 返回事件总线
func (m *Multicore) Bus() pkgif.EventBus {
	return m.bus
}

// ============================================================================
//                              swarm
// ============================================================================

// JoinSwarm 加入 swarm（重复调用返回同一个 swarm）
//
// 加入归档器自身的发现密钥以及每个已跟踪 feed 的发现密钥，
// 之后新加入归档器的 feed 也会自动加入。handlers 在任何网络活动之前注册；
// swarm 已存在时改用 OnConnection 注册。
func (m *Multicore) JoinSwarm(handlers ...func(*swarm.Peer)) (*swarm.Swarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, swarm.ErrSwarmClosed
	}
	if m.swarm != nil {
		for _, fn := range handlers {
			m.swarm.OnConnection(fn)
		}
		return m.swarm, nil
	}

	opts := []swarm.Option{
		swarm.WithUserData(m.opts.UserData),
		swarm.WithEventBus(m.bus),
	}
	for _, fn := range handlers {
		opts = append(opts, swarm.WithConnectionHandler(fn))
	}
	s, err := swarm.New(m.archiver, m.opts.Discoverer, m.opts.Swarm, opts...)
	if err != nil {
		return nil, err
	}

	// 先订阅再遍历，避免遗漏并发加入的 feed
	sub, err := m.bus.Subscribe(new(types.EvtFeedAdded), pkgif.BufSize(64))
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	topics := []types.DiscoveryKey{m.archiver.DiscoveryKey()}
	for _, f := range m.archiver.Feeds() {
		topics = append(topics, f.DiscoveryKey())
	}
	for _, topic := range topics {
		if err := s.Join(topic); err != nil {
			_ = sub.Close()
			_ = s.Close()
			return nil, err
		}
	}
	m.swarm = s
	m.feedSub = sub
	m.wg.Add(1)
	go m.followFeeds(s, sub)

	logger.Info("已加入 swarm",
		"archiver", m.Key().Short(),
		"addr", s.Addr().String(),
		"topics", len(topics))
	return s, nil
}

// followFeeds 新加入的 feed 加入 swarm
func (m *Multicore) followFeeds(s *swarm.Swarm, sub pkgif.Subscription) {
	defer m.wg.Done()
	for evt := range sub.Out() {
		e, ok := evt.(types.EvtFeedAdded)
		if !ok {
			continue
		}
		if err := s.Join(e.DiscoveryKey); err != nil {
			logger.Debug("加入 feed 话题失败", "dkey", e.DiscoveryKey.Short(), "error", err)
		}
	}
}

// Swarm 返回已加入的 swarm，未加入返回 nil
func (m *Multicore) Swarm() *swarm.Swarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swarm
}

// ============================================================================
//                              actor 宣告
// ============================================================================

// AnnounceActor 在进程内宣告一个对端 actor
func (m *Multicore) AnnounceActor(name string, key types.Key) {
	err := m.emitter.Emit(types.EvtAnnounceActor{
		BaseEvent: types.NewBaseEvent(types.EventTypeAnnounceActor),
		Name:      name,
		Key:       key,
	})
	if err != nil {
		logger.Debug("宣告 actor 失败", "name", name, "error", err)
		return
	}
	logger.Debug("宣告 actor", "name", name, "key", key.Short())
}

// SubscribeAnnouncements 订阅 actor 宣告
func (m *Multicore) SubscribeAnnouncements() (pkgif.Subscription, error) {
	return m.bus.Subscribe(new(types.EvtAnnounceActor), pkgif.BufSize(64))
}

// ============================================================================
//                              feed
// ============================================================================

// ReplicateFeed 把已打开的 feed 加入复制
func (m *Multicore) ReplicateFeed(f *feed.Feed) (*feed.Feed, error) {
	return m.archiver.AddFeed(f)
}

// CreateFeed 创建（或授权已跟踪的）可写 feed
func (m *Multicore) CreateFeed(kp *feed.KeyPair) (*feed.Feed, error) {
	f, err := m.archiver.Add(kp.Public)
	if err != nil {
		return nil, err
	}
	if err := f.Authorize(kp); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenFeed 以公钥打开并复制 feed
func (m *Multicore) OpenFeed(key types.Key) (*feed.Feed, error) {
	return m.archiver.Add(key)
}

// Replicate 返回一端复制流
func (m *Multicore) Replicate(opts replication.Options) (io.ReadWriteCloser, error) {
	return m.archiver.Replicate(opts)
}

// Close 关闭 swarm 与归档器
func (m *Multicore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	s := m.swarm
	sub := m.feedSub
	m.mu.Unlock()

	var err error
	if sub != nil {
		err = multierr.Append(err, sub.Close())
	}
	m.wg.Wait()
	if s != nil {
		err = multierr.Append(err, s.Close())
	}
	err = multierr.Append(err, m.archiver.Close())
	err = multierr.Append(err, m.emitter.Close())
	return err
}
