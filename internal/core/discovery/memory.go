package discovery

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/dep2p/go-multicore/pkg/types"
)

// ============================================================================
//                              进程内汇合点
// ============================================================================

// Rendezvous 进程内的话题注册表
//
// 同一进程内的多个 swarm 通过各自的 Memory 发现器共享一个 Rendezvous。
type Rendezvous struct {
	mu       sync.Mutex
	topics   map[types.DiscoveryKey]map[string]Peer
	watchers map[types.DiscoveryKey]map[*watcher]struct{}
}

type watcher struct {
	ch   chan Peer
	seen map[string]struct{}
}

// NewRendezvous 创建汇合点
func NewRendezvous() *Rendezvous {
	return &Rendezvous{
		topics:   make(map[types.DiscoveryKey]map[string]Peer),
		watchers: make(map[types.DiscoveryKey]map[*watcher]struct{}),
	}
}

// Discoverer 返回以 host 为广播地址的发现器
func (r *Rendezvous) Discoverer(host string) *Memory {
	if host == "" {
		host = "127.0.0.1"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Memory{r: r, host: host, ctx: ctx, cancel: cancel}
}

func (r *Rendezvous) register(topic types.DiscoveryKey, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers, ok := r.topics[topic]
	if !ok {
		peers = make(map[string]Peer)
		r.topics[topic] = peers
	}
	peers[p.ID] = p
	for w := range r.watchers[topic] {
		w.deliver(p)
	}
}

func (r *Rendezvous) unregister(topic types.DiscoveryKey, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.topics[topic], id)
}

func (r *Rendezvous) watch(topic types.DiscoveryKey) *watcher {
	w := &watcher{ch: make(chan Peer, 64), seen: make(map[string]struct{})}

	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.watchers[topic]
	if !ok {
		ws = make(map[*watcher]struct{})
		r.watchers[topic] = ws
	}
	ws[w] = struct{}{}
	for _, p := range r.topics[topic] {
		w.deliver(p)
	}
	return w
}

func (r *Rendezvous) unwatch(topic types.DiscoveryKey, w *watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers[topic], w)
	close(w.ch)
}

// deliver 调用方持有 Rendezvous 锁
func (w *watcher) deliver(p Peer) {
	key := p.ID + "@" + p.Addr
	if _, ok := w.seen[key]; ok {
		return
	}
	w.seen[key] = struct{}{}
	select {
	case w.ch <- p:
	default:
		logger.Warn("进程内发现通道已满，丢弃对端", "peer", p.ID, "addr", p.Addr)
	}
}

// ============================================================================
//                              Memory 发现器
// ============================================================================

// Memory 基于 Rendezvous 的发现器
type Memory struct {
	r      *Rendezvous
	host   string
	ctx    context.Context
	cancel context.CancelFunc
}

var _ Discoverer = (*Memory)(nil)

// Advertise 注册到汇合点
func (m *Memory) Advertise(ctx context.Context, topic types.DiscoveryKey, id string, port int) error {
	if m.ctx.Err() != nil {
		return ErrClosed
	}
	m.r.register(topic, Peer{ID: id, Addr: net.JoinHostPort(m.host, strconv.Itoa(port))})

	go func() {
		select {
		case <-ctx.Done():
		case <-m.ctx.Done():
		}
		m.r.unregister(topic, id)
	}()
	return nil
}

// FindPeers 返回已注册与之后注册的对端
func (m *Memory) FindPeers(ctx context.Context, topic types.DiscoveryKey) (<-chan Peer, error) {
	if m.ctx.Err() != nil {
		return nil, ErrClosed
	}
	w := m.r.watch(topic)

	go func() {
		select {
		case <-ctx.Done():
		case <-m.ctx.Done():
		}
		m.r.unwatch(topic, w)
	}()
	return w.ch, nil
}

// Close 撤销全部广播与查找
func (m *Memory) Close() error {
	m.cancel()
	return nil
}
