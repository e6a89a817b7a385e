package multicore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/actors"
	"github.com/dep2p/go-multicore/internal/core/bridge"
	"github.com/dep2p/go-multicore/internal/core/discovery"
	"github.com/dep2p/go-multicore/internal/core/document"
	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/internal/core/identity"
	hub "github.com/dep2p/go-multicore/internal/core/multicore"
	"github.com/dep2p/go-multicore/internal/core/replication"
	"github.com/dep2p/go-multicore/internal/core/storage"
	"github.com/dep2p/go-multicore/internal/core/storage/engine/badger"
	"github.com/dep2p/go-multicore/internal/core/swarm"
	pkgif "github.com/dep2p/go-multicore/pkg/interfaces"
	"github.com/dep2p/go-multicore/pkg/types"
)

// PeerOption 对端选项
type PeerOption func(*peerOptions) error

type peerOptions struct {
	docKey     *types.Key
	readOnly   bool
	discoverer discovery.Discoverer
}

// WithDocument 打开已有文档，覆盖 keystore 中保存的文档密钥
func WithDocument(key types.Key) PeerOption {
	return func(o *peerOptions) error {
		if key.IsZero() {
			return fmt.Errorf("document key is zero")
		}
		o.docKey = &key
		return nil
	}
}

// WithReadOnly 只读打开文档，不创建本地 feed
func WithReadOnly() PeerOption {
	return func(o *peerOptions) error {
		o.readOnly = true
		return nil
	}
}

// WithDiscoverer 使用指定的发现器替代配置中的 mDNS/静态列表
//
// 发现器由调用方关闭。
func WithDiscoverer(d discovery.Discoverer) PeerOption {
	return func(o *peerOptions) error {
		o.discoverer = d
		return nil
	}
}

// Peer 本地对端
//
// 组装顺序：存储 → 身份 → 会话 → 文档 → actor 注册表 → swarm/中继。
// 关闭顺序相反。
type Peer struct {
	cfg *config.Config

	engine   *badger.Engine
	keystore pkgif.Keystore
	actorKP  *feed.KeyPair

	hub      *hub.Multicore
	doc      *document.Document
	registry *actors.Registry

	announcements  pkgif.Subscription
	discoverer     discovery.Discoverer
	ownsDiscoverer bool
	link           *bridge.Link

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// OpenPeer 打开对端
func OpenPeer(ctx context.Context, cfg *config.Config, opts ...PeerOption) (_ *Peer, err error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	var o peerOptions
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	p := &Peer{cfg: cfg}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	// ════════════════════════════════════════════════════════════════════════
	// 存储与身份
	// ════════════════════════════════════════════════════════════════════════
	eng, feeds, ids, err := storage.Open(storage.ConfigFromUnified(cfg))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	p.engine = eng
	p.keystore = identity.NewKVKeystore(ids)

	archiverKP, _, err := identity.LoadKeyPair(p.keystore, identity.ArchiverKeyName)
	if err != nil {
		return nil, err
	}
	if p.actorKP, _, err = identity.LoadKeyPair(p.keystore, identity.ActorKeyName); err != nil {
		return nil, err
	}

	docKey := o.docKey
	if docKey == nil {
		saved, ok, err := identity.LoadKey(p.keystore, cfg.Identity.KeyName)
		if err != nil {
			return nil, err
		}
		if ok {
			docKey = &saved
		}
	}
	if docKey == nil && o.readOnly {
		return nil, ErrReadOnlyCreate
	}

	// ════════════════════════════════════════════════════════════════════════
	// 会话
	// ════════════════════════════════════════════════════════════════════════
	p.discoverer = o.discoverer
	if p.discoverer == nil && cfg.Swarm.Enable {
		if p.discoverer, err = swarm.DiscovererFromUnified(cfg); err != nil {
			return nil, err
		}
		p.ownsDiscoverer = true
	}

	p.hub, err = hub.New(hub.Options{
		Storage:         feed.KVStorageFactory(feeds),
		ArchiverKeyPair: archiverKP,
		Discoverer:      p.discoverer,
		Swarm:           swarm.ConfigFromUnified(cfg),
		UserData:        swarm.EncodeUserData(cfg.Identity.Name, p.actorKP.Public),
		Replication: replication.Options{
			Window:    cfg.Archiver.RequestWindow,
			SendQueue: cfg.Archiver.SendQueue,
		},
	})
	if err != nil {
		return nil, err
	}
	select {
	case <-p.hub.Ready():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// ════════════════════════════════════════════════════════════════════════
	// 文档与注册表
	// ════════════════════════════════════════════════════════════════════════
	if docKey == nil || *docKey == p.actorKP.Public {
		p.doc, err = document.Create(p.hub, p.actorKP)
	} else {
		p.doc, err = document.Open(p.hub, *docKey, p.actorKP, o.readOnly)
	}
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	if err := identity.SaveKey(p.keystore, cfg.Identity.KeyName, p.doc.ID()); err != nil {
		return nil, err
	}

	if p.announcements, err = p.hub.SubscribeAnnouncements(); err != nil {
		return nil, err
	}
	p.wg.Add(1)
	go p.connectAnnounced(p.announcements)

	p.registry = actors.New(p.doc, actors.ConfigFromUnified(cfg))
	p.registry.Start()

	// ════════════════════════════════════════════════════════════════════════
	// 网络
	// ════════════════════════════════════════════════════════════════════════
	if cfg.Swarm.Enable {
		connector := swarm.NewConnector(p.hub.Archiver(), p.hub)
		if _, err := p.hub.JoinSwarm(connector.HandleConnection); err != nil {
			return nil, fmt.Errorf("join swarm: %w", err)
		}
	}
	if cfg.Bridge.RelayURL != "" {
		if p.link, err = bridge.Dial(ctx, cfg.Bridge.RelayURL, p.hub); err != nil {
			return nil, fmt.Errorf("dial relay: %w", err)
		}
	}

	logger.Info("对端已打开",
		"name", cfg.Identity.Name,
		"doc", p.doc.ID().Short(),
		"actor", p.actorKP.Public.Short(),
		"archiver", p.hub.Key().Short(),
		"swarm", cfg.Swarm.Enable,
		"relay", cfg.Bridge.RelayURL)
	return p, nil
}

// connectAnnounced 宣告的 actor 加入文档读取
func (p *Peer) connectAnnounced(sub pkgif.Subscription) {
	defer p.wg.Done()
	for evt := range sub.Out() {
		e, ok := evt.(types.EvtAnnounceActor)
		if !ok {
			continue
		}
		if err := p.doc.ConnectPeer(e.Key); err != nil {
			logger.Debug("连接宣告的 actor 失败", "name", e.Name, "key", e.Key.Short(), "error", err)
			continue
		}
		logger.Info("连接 actor", "name", e.Name, "key", e.Key.Short())
	}
}

// ID 文档标识
func (p *Peer) ID() types.Key {
	return p.doc.ID()
}

// ActorID 本地 actor 标识
func (p *Peer) ActorID() string {
	return p.doc.ActorID()
}

// ArchiverKey 归档器公钥，也是中继路径中的会话密钥
func (p *Peer) ArchiverKey() types.Key {
	return p.hub.Key()
}

// Document 文档
func (p *Peer) Document() *document.Document {
	return p.doc
}

// Registry actor 注册表
func (p *Peer) Registry() *actors.Registry {
	return p.registry
}

// Hub 会话
func (p *Peer) Hub() *hub.Multicore {
	return p.hub
}

// Link 中继连接，未配置中继时为 nil
func (p *Peer) Link() *bridge.Link {
	return p.link
}

// Actors 当前的 actor 可见性映射（副本）
func (p *Peer) Actors() map[string]any {
	m, _ := p.doc.Get().Map(document.ActorsKey)
	return m
}

// Set 在文档根上写入一个键
func (p *Peer) Set(key string, value any) error {
	return p.doc.Change("set "+key, func(tx *document.Tx) {
		tx.Set(value, key)
	})
}

// Close 关闭对端
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var err error
	if p.link != nil {
		err = multierr.Append(err, p.link.Close())
	}
	if p.announcements != nil {
		err = multierr.Append(err, p.announcements.Close())
	}
	p.wg.Wait()
	if p.registry != nil {
		err = multierr.Append(err, p.registry.Close())
	}
	if p.doc != nil {
		err = multierr.Append(err, p.doc.Close())
	}
	if p.hub != nil {
		err = multierr.Append(err, p.hub.Close())
	}
	if p.discoverer != nil && p.ownsDiscoverer {
		err = multierr.Append(err, p.discoverer.Close())
	}
	if p.engine != nil {
		err = multierr.Append(err, p.engine.Close())
	}
	logger.Debug("对端已关闭", "error", err)
	return err
}
