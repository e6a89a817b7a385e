package replication

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedMap 测试用的 FeedSet
type feedMap struct {
	mu    sync.Mutex
	feeds map[types.DiscoveryKey]*feed.Feed
}

func newFeedMap(fs ...*feed.Feed) *feedMap {
	m := &feedMap{feeds: make(map[types.DiscoveryKey]*feed.Feed)}
	for _, f := range fs {
		m.add(f)
	}
	return m
}

func (m *feedMap) add(f *feed.Feed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeds[f.DiscoveryKey()] = f
}

func (m *feedMap) Feed(dk types.DiscoveryKey) *feed.Feed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feeds[dk]
}

func (m *feedMap) all() []*feed.Feed {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*feed.Feed, 0, len(m.feeds))
	for _, f := range m.feeds {
		out = append(out, f)
	}
	return out
}

func writableFeed(t *testing.T, entries int) (*feed.Feed, *feed.KeyPair) {
	t.Helper()
	kp, err := feed.GenerateKeyPair()
	require.NoError(t, err)
	f, err := feed.Create(kp, feed.NewMemoryStorage())
	require.NoError(t, err)
	for i := 0; i < entries; i++ {
		_, err := f.Append([]byte(fmt.Sprintf("entry-%d", i)))
		require.NoError(t, err)
	}
	return f, kp
}

func replicaOf(t *testing.T, kp *feed.KeyPair) *feed.Feed {
	t.Helper()
	f, err := feed.Open(kp.Public, feed.NewMemoryStorage())
	require.NoError(t, err)
	return f
}

// pair 用内存管道连接两个会话并声明各自的 feed
func pair(t *testing.T, a, b *feedMap, optsA, optsB Options) (*Session, *Session) {
	t.Helper()
	ca, cb := net.Pipe()

	sa, err := NewSession(ca, a, optsA)
	require.NoError(t, err)
	sb, err := NewSession(cb, b, optsB)
	require.NoError(t, err)

	sa.Start()
	sb.Start()
	for _, f := range a.all() {
		sa.Offer(f)
	}
	for _, f := range b.all() {
		sb.Offer(f)
	}

	t.Cleanup(func() {
		_ = sa.Close()
		_ = sb.Close()
	})
	return sa, sb
}

func TestSession_Handshake(t *testing.T) {
	sa, sb := pair(t, newFeedMap(), newFeedMap(),
		Options{ID: []byte("a"), UserData: []byte("hello")},
		Options{ID: []byte("b")},
	)

	for _, s := range []*Session{sa, sb} {
		select {
		case <-s.HandshakeDone():
		case <-time.After(5 * time.Second):
			t.Fatal("握手超时")
		}
	}

	assert.Equal(t, []byte("b"), sa.RemoteID())
	assert.Empty(t, sa.RemoteUserData())
	assert.Equal(t, []byte("a"), sb.RemoteID())
	assert.Equal(t, []byte("hello"), sb.RemoteUserData())
}

func TestSession_EncryptRejected(t *testing.T) {
	ca, cb := net.Pipe()
	defer ca.Close()
	defer cb.Close()

	_, err := NewSession(ca, newFeedMap(), Options{Encrypt: true})
	assert.ErrorIs(t, err, ErrEncryptionUnsupported)
}

func TestSession_ReplicatesExistingEntries(t *testing.T) {
	src, kp := writableFeed(t, 100)
	dst := replicaOf(t, kp)

	pair(t, newFeedMap(src), newFeedMap(dst), Options{}, Options{Window: 8})

	require.Eventually(t, func() bool { return dst.Len() == 100 }, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, dst.Verify())

	v, err := dst.Get(99)
	require.NoError(t, err)
	assert.Equal(t, "entry-99", string(v))
}

func TestSession_LiveAppend(t *testing.T) {
	src, kp := writableFeed(t, 0)
	dst := replicaOf(t, kp)

	pair(t, newFeedMap(src), newFeedMap(dst), Options{}, Options{})

	for i := 0; i < 5; i++ {
		_, err := src.Append([]byte(fmt.Sprintf("live-%d", i)))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return dst.Len() == 5 }, 5*time.Second, 10*time.Millisecond)
}

func TestSession_LateOffer(t *testing.T) {
	src, kp := writableFeed(t, 3)
	dst := replicaOf(t, kp)

	a := newFeedMap(src)
	b := newFeedMap()
	_, sb := pair(t, a, b, Options{}, Options{})

	// 会话建立之后 b 才开始跟踪该 feed
	require.Eventually(t, func() bool {
		select {
		case <-sb.HandshakeDone():
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	b.add(dst)
	sb.Offer(dst)

	require.Eventually(t, func() bool { return dst.Len() == 3 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, sb.OpenChannels())
}

func TestSession_KeyLearnedFromPeer(t *testing.T) {
	src, _ := writableFeed(t, 4)

	// 只知道发现密钥的副本
	dst, err := feed.OpenDiscoveryKey(src.DiscoveryKey(), feed.NewMemoryStorage())
	require.NoError(t, err)
	_, ok := dst.Key()
	require.False(t, ok)

	pair(t, newFeedMap(src), newFeedMap(dst), Options{}, Options{})

	require.Eventually(t, func() bool { return dst.Len() == 4 }, 5*time.Second, 10*time.Millisecond)
	key, ok := dst.Key()
	require.True(t, ok)
	srcKey, _ := src.Key()
	assert.Equal(t, srcKey, key)
}

func TestSession_ChainThroughMiddle(t *testing.T) {
	src, kp := writableFeed(t, 10)
	mid := replicaOf(t, kp)
	end := replicaOf(t, kp)

	midSet := newFeedMap(mid)
	pair(t, newFeedMap(src), midSet, Options{}, Options{})
	pair(t, midSet, newFeedMap(end), Options{}, Options{})

	require.Eventually(t, func() bool { return end.Len() == 10 }, 5*time.Second, 10*time.Millisecond)

	_, err := src.Append([]byte("more"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return end.Len() == 11 }, 5*time.Second, 10*time.Millisecond)
}

func TestSession_ProtocolViolation(t *testing.T) {
	ca, cb := net.Pipe()
	s, err := NewSession(ca, newFeedMap(), Options{})
	require.NoError(t, err)
	s.Start()

	go func() {
		// 读掉对方的握手，再发一个非握手首帧
		dec := NewDecoder(cb)
		_, _ = dec.Next()
		_, _ = cb.Write(Encode(&Have{Length: 1}))
	}()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("会话未关闭")
	}
	assert.ErrorIs(t, s.Err(), ErrProtocol)
	_ = cb.Close()
}

func TestSession_PeerCloseIsClean(t *testing.T) {
	sa, sb := pair(t, newFeedMap(), newFeedMap(), Options{}, Options{})
	<-sa.HandshakeDone()

	require.NoError(t, sb.Close())

	select {
	case <-sa.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("对端关闭后会话未结束")
	}
	assert.NoError(t, sa.Err())
}
