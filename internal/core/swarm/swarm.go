package swarm

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-multicore/internal/core/discovery"
	"github.com/dep2p/go-multicore/internal/core/replication"
	pkgif "github.com/dep2p/go-multicore/pkg/interfaces"
	"github.com/dep2p/go-multicore/pkg/lib/log"
	"github.com/dep2p/go-multicore/pkg/types"
)

var logger = log.Logger("core/swarm")

// dispatchQueue 连接事件队列长度
const dispatchQueue = 64

// Replicator 为连接启动复制会话
type Replicator interface {
	ReplicateTo(conn io.ReadWriteCloser, opts replication.Options) (*replication.Session, error)
}

// Peer 一条完成复制握手的连接
type Peer struct {
	// Topic 发现该连接的话题，直接连接时为零值
	Topic types.DiscoveryKey
	// RemoteID 对端 swarm 标识
	RemoteID string
	// RemoteAddr 对端地址
	RemoteAddr string
	// Outbound 是否由本端发起
	Outbound bool
	// UserData 对端握手数据，可能为空或格式错误
	UserData []byte
	// Session 复制会话
	Session *replication.Session
}

// Option Swarm 选项函数
type Option func(*Swarm)

// WithUserData 设置随握手发送的身份数据
func WithUserData(data []byte) Option {
	return func(s *Swarm) {
		s.userData = data
	}
}

// WithEventBus 发布 EvtPeerConnected
func WithEventBus(bus pkgif.EventBus) Option {
	return func(s *Swarm) {
		s.bus = bus
	}
}

// WithConnectionHandler 在开始监听前注册连接事件处理器
//
// 与 OnConnection 相同，但不会错过 New 返回前后完成握手的连接。
func WithConnectionHandler(fn func(*Peer)) Option {
	return func(s *Swarm) {
		if fn != nil {
			s.handlers = append(s.handlers, fn)
		}
	}
}

// WithID 指定 swarm 标识，默认随机 uuid
func WithID(id string) Option {
	return func(s *Swarm) {
		s.id = id
	}
}

// Swarm 按话题发现对端并为每条连接运行复制会话
type Swarm struct {
	cfg      Config
	id       string
	repl     Replicator
	disc     discovery.Discoverer
	userData []byte
	bus      pkgif.EventBus
	emitter  pkgif.Emitter

	ln     net.Listener
	dialed *lru.Cache[string, time.Time]

	mu       sync.Mutex
	handlers []func(*Peer)
	peers    map[string]*Peer
	topics   map[types.DiscoveryKey]context.CancelFunc
	closed   bool

	events chan *Peer
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建并开始监听
func New(repl Replicator, disc discovery.Discoverer, cfg Config, opts ...Option) (*Swarm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialed, err := lru.New[string, time.Time](cfg.DialCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Swarm{
		cfg:    cfg,
		id:     uuid.NewString(),
		repl:   repl,
		disc:   disc,
		dialed: dialed,
		peers:  make(map[string]*Peer),
		topics: make(map[types.DiscoveryKey]context.CancelFunc),
		events: make(chan *Peer, dispatchQueue),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus != nil {
		if s.emitter, err = s.bus.Emitter(new(types.EvtPeerConnected)); err != nil {
			cancel()
			return nil, err
		}
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	s.ln = ln

	s.wg.Add(2)
	go s.acceptLoop()
	go s.dispatchLoop()

	logger.Info("swarm 已启动", "id", log.TruncateID(s.id, 8), "addr", ln.Addr().String())
	return s, nil
}

// ID swarm 标识
func (s *Swarm) ID() string {
	return s.id
}

// Addr 监听地址
func (s *Swarm) Addr() net.Addr {
	return s.ln.Addr()
}

// Port 监听端口
func (s *Swarm) Port() int {
	if tcp, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// OnConnection 注册连接事件处理器
//
// 处理器在同一个 goroutine 上依次执行。
func (s *Swarm) OnConnection(fn func(*Peer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// Peers 当前连接的对端
func (s *Swarm) Peers() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// ============================================================================
//                              话题
// ============================================================================

// Join 在话题下广播并持续连接发现的对端（重复调用无副作用）
func (s *Swarm) Join(topic types.DiscoveryKey) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSwarmClosed
	}
	if _, ok := s.topics[topic]; ok {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.topics[topic] = cancel
	s.mu.Unlock()

	if s.disc == nil {
		logger.Debug("没有发现器，只接受入站连接", "topic", topic.Short())
		return nil
	}

	if err := s.disc.Advertise(ctx, topic, s.id, s.Port()); err != nil {
		logger.Warn("广播话题失败", "topic", topic.Short(), "error", err)
	}
	peers, err := s.disc.FindPeers(ctx, topic)
	if err != nil {
		s.Leave(topic)
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for p := range peers {
			s.maybeDial(ctx, topic, p)
		}
	}()

	logger.Info("已加入话题", "topic", topic.Short())
	return nil
}

// Leave 离开话题，已有连接保持
func (s *Swarm) Leave(topic types.DiscoveryKey) {
	s.mu.Lock()
	cancel, ok := s.topics[topic]
	delete(s.topics, topic)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Joined 是否已加入话题
func (s *Swarm) Joined(topic types.DiscoveryKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.topics[topic]
	return ok
}

func (s *Swarm) maybeDial(ctx context.Context, topic types.DiscoveryKey, p discovery.Peer) {
	if p.ID != "" && p.ID == s.id {
		return
	}
	if p.Addr == "" {
		return
	}
	if ok, _ := s.dialed.ContainsOrAdd(p.Addr, time.Now()); ok {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.dial(ctx, topic, p.Addr); err != nil {
			// 失败的地址允许之后重新发现时再拨
			s.dialed.Remove(p.Addr)
			logger.Debug("拨号失败", "addr", p.Addr, "error", err)
		}
	}()
}

// ============================================================================
//                              连接
// ============================================================================

// Connect 直接连接一个地址并等待握手
func (s *Swarm) Connect(ctx context.Context, addr string) (*Peer, error) {
	return s.dial(ctx, types.DiscoveryKey{}, addr)
}

func (s *Swarm) dial(ctx context.Context, topic types.DiscoveryKey, addr string) (*Peer, error) {
	d := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return s.handleConn(conn, topic, true)
}

func (s *Swarm) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Warn("接受连接失败", "error", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.handleConn(conn, types.DiscoveryKey{}, false); err != nil {
				logger.Debug("入站连接被丢弃", "remote", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

// handleConn 运行复制会话并等待握手，随后登记连接并派发事件
func (s *Swarm) handleConn(conn net.Conn, topic types.DiscoveryKey, outbound bool) (*Peer, error) {
	sess, err := s.repl.ReplicateTo(conn, replication.Options{
		ID:        []byte(s.id),
		UserData:  s.userData,
		Window:    s.cfg.Window,
		SendQueue: s.cfg.SendQueue,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	timer := time.NewTimer(s.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case <-sess.HandshakeDone():
	case <-sess.Done():
		if err := sess.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	case <-timer.C:
		_ = sess.Close()
		return nil, ErrHandshakeTimeout
	case <-s.ctx.Done():
		_ = sess.Close()
		return nil, ErrSwarmClosed
	}

	p := &Peer{
		Topic:      topic,
		RemoteID:   string(sess.RemoteID()),
		RemoteAddr: conn.RemoteAddr().String(),
		Outbound:   outbound,
		UserData:   sess.RemoteUserData(),
		Session:    sess,
	}
	if p.RemoteID == s.id {
		_ = sess.Close()
		return nil, ErrDialToSelf
	}
	if err := s.addPeer(p); err != nil {
		_ = sess.Close()
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-sess.Done():
		case <-s.ctx.Done():
			_ = sess.Close()
		}
		s.removePeer(p)
	}()

	select {
	case s.events <- p:
	case <-s.ctx.Done():
		return nil, ErrSwarmClosed
	}
	return p, nil
}

// addPeer 登记连接
//
// 与同一对端的两条连接中保留由标识较小一方发起的那条，
// 两端据此得出相同的结论。
func (s *Swarm) addPeer(p *Peer) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSwarmClosed
	}
	old, exists := s.peers[p.RemoteID]
	if exists && !s.preferNew(old, p) {
		s.mu.Unlock()
		return ErrDuplicateConnection
	}
	s.peers[p.RemoteID] = p
	s.mu.Unlock()

	if exists {
		logger.Debug("替换重复连接", "peer", log.TruncateID(p.RemoteID, 8))
		_ = old.Session.Close()
	}
	return nil
}

func (s *Swarm) preferNew(old, p *Peer) bool {
	if old.Outbound == p.Outbound {
		return false
	}
	lowest := s.id
	if p.RemoteID < lowest {
		lowest = p.RemoteID
	}
	initiator := p.RemoteID
	if p.Outbound {
		initiator = s.id
	}
	return initiator == lowest
}

func (s *Swarm) removePeer(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.peers[p.RemoteID]; ok && cur == p {
		delete(s.peers, p.RemoteID)
	}
}

// dispatchLoop 依次把连接事件交给处理器
func (s *Swarm) dispatchLoop() {
	defer s.wg.Done()
	for {
		select {
		case p := <-s.events:
			s.dispatch(p)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Swarm) dispatch(p *Peer) {
	s.mu.Lock()
	handlers := append([]func(*Peer){}, s.handlers...)
	s.mu.Unlock()

	logger.Debug("对端已连接",
		"peer", log.TruncateID(p.RemoteID, 8),
		"remote", p.RemoteAddr,
		"outbound", p.Outbound)

	if s.emitter != nil {
		_ = s.emitter.Emit(types.EvtPeerConnected{
			BaseEvent:  types.NewBaseEvent(types.EventTypePeerConnected),
			Topic:      p.Topic,
			RemoteAddr: p.RemoteAddr,
			Outbound:   p.Outbound,
		})
	}

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("连接事件处理器 panic", "recover", r)
				}
			}()
			fn(p)
		}()
	}
}

// Close 关闭监听、话题与所有连接
func (s *Swarm) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	s.cancel()
	err := s.ln.Close()
	for _, p := range peers {
		_ = p.Session.Close()
	}
	if s.emitter != nil {
		_ = s.emitter.Close()
	}
	s.wg.Wait()

	logger.Info("swarm 已关闭", "id", log.TruncateID(s.id, 8))
	return err
}
