package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/dep2p/go-multicore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Peer, n int) []Peer {
	t.Helper()
	var out []Peer
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case p, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, p)
		case <-timeout:
			t.Fatalf("只收到 %d 个对端，期望 %d", len(out), n)
		}
	}
	return out
}

func TestStatic_FindPeers(t *testing.T) {
	s := NewStatic([]string{"10.0.0.1:4001", "10.0.0.2:4001"})

	ch, err := s.FindPeers(context.Background(), types.DiscoveryKey{1})
	require.NoError(t, err)
	peers := collect(t, ch, 3)
	assert.Equal(t, []Peer{{Addr: "10.0.0.1:4001"}, {Addr: "10.0.0.2:4001"}}, peers)

	require.NoError(t, s.Close())
	_, err = s.FindPeers(context.Background(), types.DiscoveryKey{1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemory_AdvertiseThenFind(t *testing.T) {
	r := NewRendezvous()
	a := r.Discoverer("")
	b := r.Discoverer("")
	defer a.Close()
	defer b.Close()

	topic := types.DiscoveryKey{7}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, a.Advertise(ctx, topic, "a", 4001))

	ch, err := b.FindPeers(ctx, topic)
	require.NoError(t, err)
	peers := collect(t, ch, 1)
	assert.Equal(t, Peer{ID: "a", Addr: "127.0.0.1:4001"}, peers[0])
}

func TestMemory_FindThenAdvertise(t *testing.T) {
	r := NewRendezvous()
	a := r.Discoverer("")
	b := r.Discoverer("")
	defer a.Close()
	defer b.Close()

	topic := types.DiscoveryKey{7}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.FindPeers(ctx, topic)
	require.NoError(t, err)

	require.NoError(t, a.Advertise(ctx, topic, "a", 4002))
	require.NoError(t, a.Advertise(ctx, types.DiscoveryKey{8}, "a", 4003))

	peers := collect(t, ch, 1)
	assert.Equal(t, "127.0.0.1:4002", peers[0].Addr)

	select {
	case p := <-ch:
		t.Fatalf("收到其他话题的对端: %v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemory_CancelClosesChannel(t *testing.T) {
	r := NewRendezvous()
	m := r.Discoverer("")
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := m.FindPeers(ctx, types.DiscoveryKey{1})
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("通道未关闭")
	}
}

func TestMulti_MergesResults(t *testing.T) {
	r := NewRendezvous()
	adv := r.Discoverer("")
	defer adv.Close()

	topic := types.DiscoveryKey{3}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, adv.Advertise(ctx, topic, "m", 5000))

	m := Multi{NewStatic([]string{"10.0.0.9:1"}), r.Discoverer("")}
	defer m.Close()

	ch, err := m.FindPeers(ctx, topic)
	require.NoError(t, err)
	peers := collect(t, ch, 2)
	assert.ElementsMatch(t, []Peer{{Addr: "10.0.0.9:1"}, {ID: "m", Addr: "127.0.0.1:5000"}}, peers)
}
