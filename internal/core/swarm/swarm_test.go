package swarm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dep2p/go-multicore/internal/core/archiver"
	"github.com/dep2p/go-multicore/internal/core/discovery"
	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.HandshakeTimeout = 2 * time.Second
	return cfg
}

func newArchiver(t *testing.T) *archiver.Archiver {
	t.Helper()
	a, err := archiver.New(archiver.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func newSwarm(t *testing.T, a *archiver.Archiver, disc discovery.Discoverer, opts ...Option) *Swarm {
	t.Helper()
	s, err := New(a, disc, testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// peerRecorder 记录连接事件
type peerRecorder struct {
	mu    sync.Mutex
	peers []*Peer
}

func (r *peerRecorder) handle(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = append(r.peers, p)
}

func (r *peerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *peerRecorder) first() *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[0]
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ListenAddr = "nope"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.DialCacheSize = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestSwarm_ConnectCarriesUserData(t *testing.T) {
	a := newSwarm(t, newArchiver(t), nil, WithUserData([]byte(`{"name":"a"}`)))
	b := newSwarm(t, newArchiver(t), nil)

	var rec peerRecorder
	b.OnConnection(rec.handle)

	p, err := a.Connect(context.Background(), b.Addr().String())
	require.NoError(t, err)
	assert.True(t, p.Outbound)
	assert.Equal(t, b.ID(), p.RemoteID)

	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	got := rec.first()
	assert.False(t, got.Outbound)
	assert.Equal(t, a.ID(), got.RemoteID)
	assert.Equal(t, []byte(`{"name":"a"}`), got.UserData)
}

func TestSwarm_HandlerOptionSeesFirstConnection(t *testing.T) {
	var rec peerRecorder
	b := newSwarm(t, newArchiver(t), nil, WithConnectionHandler(rec.handle), WithConnectionHandler(nil))
	a := newSwarm(t, newArchiver(t), nil)

	// 连接在 New 返回后立即建立，处理器无需再注册
	_, err := a.Connect(context.Background(), b.Addr().String())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, a.ID(), rec.first().RemoteID)
	assert.Len(t, b.Peers(), 1)
}

func TestSwarm_DropsSelfConnection(t *testing.T) {
	s := newSwarm(t, newArchiver(t), nil)

	var rec peerRecorder
	s.OnConnection(rec.handle)

	_, err := s.Connect(context.Background(), s.Addr().String())
	assert.ErrorIs(t, err, ErrDialToSelf)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count())
	assert.Empty(t, s.Peers())
}

func TestSwarm_DuplicateConnectionResolved(t *testing.T) {
	a := newSwarm(t, newArchiver(t), nil)
	b := newSwarm(t, newArchiver(t), nil)

	_, errA := a.Connect(context.Background(), b.Addr().String())
	_, errB := b.Connect(context.Background(), a.Addr().String())

	// 两条连接中恰好一条被保留
	require.Eventually(t, func() bool {
		return len(a.Peers()) == 1 && len(b.Peers()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	if a.ID() < b.ID() {
		assert.NoError(t, errA)
		require.Eventually(t, func() bool { return a.Peers()[0].Outbound }, 5*time.Second, 10*time.Millisecond)
	} else {
		assert.NoError(t, errB)
		require.Eventually(t, func() bool { return b.Peers()[0].Outbound }, 5*time.Second, 10*time.Millisecond)
	}
}

func TestSwarm_JoinDiscoversPeers(t *testing.T) {
	r := discovery.NewRendezvous()
	topic := types.DiscoveryKey{42}

	a := newSwarm(t, newArchiver(t), r.Discoverer("127.0.0.1"))
	b := newSwarm(t, newArchiver(t), r.Discoverer("127.0.0.1"))

	var recA, recB peerRecorder
	a.OnConnection(recA.handle)
	b.OnConnection(recB.handle)

	require.NoError(t, a.Join(topic))
	require.NoError(t, a.Join(topic))
	require.NoError(t, b.Join(topic))
	assert.True(t, a.Joined(topic))

	require.Eventually(t, func() bool {
		return recA.count() >= 1 && recB.count() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	a.Leave(topic)
	assert.False(t, a.Joined(topic))
}

func TestSwarm_ConnectorReplicatesAnnouncedFeed(t *testing.T) {
	kp, err := feed.GenerateKeyPair()
	require.NoError(t, err)

	archA := newArchiver(t)
	local, err := archA.AddFeed(mustCreate(t, kp))
	require.NoError(t, err)
	_, err = local.Append([]byte("hello"), []byte("world"))
	require.NoError(t, err)

	archB := newArchiver(t)
	ann := &fakeAnnouncer{}

	a := newSwarm(t, archA, nil, WithUserData(EncodeUserData("alice", kp.Public)))
	b := newSwarm(t, archB, nil)
	b.OnConnection(NewConnector(archB, ann).HandleConnection)

	_, err = a.Connect(context.Background(), b.Addr().String())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f := archB.Feed(feed.DiscoveryKey(kp.Public))
		return f != nil && f.Len() == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		ann.mu.Lock()
		defer ann.mu.Unlock()
		return len(ann.got) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, announcement{"alice", kp.Public}, ann.got[0])
}

func TestSwarm_CloseIdempotent(t *testing.T) {
	s, err := New(newArchiver(t), nil, testConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Join(types.DiscoveryKey{1}), ErrSwarmClosed)
}

func mustCreate(t *testing.T, kp *feed.KeyPair) *feed.Feed {
	t.Helper()
	f, err := feed.Create(kp, feed.NewMemoryStorage())
	require.NoError(t, err)
	return f
}
