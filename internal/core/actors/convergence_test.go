package actors

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-multicore/internal/core/document"
	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/pkg/types"
)

// sharedHost 所有文档共享同一组内存 feed
type sharedHost struct {
	mu    sync.Mutex
	feeds map[types.Key]*feed.Feed
}

func (h *sharedHost) CreateFeed(kp *feed.KeyPair) (*feed.Feed, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.feeds[kp.Public]; ok {
		return f, f.Authorize(kp)
	}
	f, err := feed.Create(kp, feed.NewMemoryStorage())
	if err != nil {
		return nil, err
	}
	h.feeds[kp.Public] = f
	return f, nil
}

func (h *sharedHost) OpenFeed(key types.Key) (*feed.Feed, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.feeds[key]; ok {
		return f, nil
	}
	f, err := feed.Open(key, feed.NewMemoryStorage())
	if err != nil {
		return nil, err
	}
	h.feeds[key] = f
	return f, nil
}

func TestRegistry_ThreeActorsConverge(t *testing.T) {
	h := &sharedHost{feeds: make(map[types.Key]*feed.Feed)}

	kp, err := feed.GenerateKeyPair()
	require.NoError(t, err)
	a, err := document.Create(h, kp)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	docs := []*document.Document{a}
	for i := 0; i < 2; i++ {
		d, err := document.Open(h, a.ID(), nil, false)
		require.NoError(t, err)
		t.Cleanup(func() { _ = d.Close() })
		docs = append(docs, d)
	}

	regs := make([]*Registry, 0, len(docs))
	for _, d := range docs {
		r := New(d, Config{SettleDelay: 0, MaxCommitStreak: 8})
		r.Start()
		t.Cleanup(func() { _ = r.Close() })
		regs = append(regs, r)
	}

	// 两两交换 feed
	for _, d := range docs {
		for _, other := range docs {
			if d == other {
				continue
			}
			key, _ := other.LocalFeed().Key()
			require.NoError(t, d.ConnectPeer(key))
		}
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ActorID()
	}
	expected := func(self string) map[string]any {
		out := map[string]any{}
		for _, id := range ids {
			if id != self {
				out[id] = true
			}
		}
		return out
	}

	require.Eventually(t, func() bool {
		for _, d := range docs {
			st := d.Get()
			for _, id := range ids {
				entry, ok := st.Map(document.ActorsKey, id)
				if !ok || !equalEntry(entry, expected(id)) {
					return false
				}
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	// 收敛后不再提交
	for _, r := range regs {
		committed, err := r.Reconcile()
		require.NoError(t, err)
		require.False(t, committed)
		require.Equal(t, Resolved, r.State())
	}
}

func equalEntry(entry, want map[string]any) bool {
	n := 0
	for k, v := range entry {
		if k == document.ObjectIDKey {
			continue
		}
		if want[k] != v {
			return false
		}
		n++
	}
	return n == len(want)
}
