package multicore

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/bridge"
	"github.com/dep2p/go-multicore/internal/core/feed"
	hub "github.com/dep2p/go-multicore/internal/core/multicore"
	"github.com/dep2p/go-multicore/pkg/types"
)

func relayConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Bridge.ListenAddr = "127.0.0.1:0"
	cfg.Swarm.Enable = false
	return cfg
}

func startRelay(t *testing.T, cfg *config.Config) *Relay {
	t.Helper()
	r, err := NewRelay(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop(context.Background()) })
	return r
}

func TestNewRelayApp_InvalidConfig(t *testing.T) {
	cfg := relayConfig()
	cfg.Storage.Mode = "tape"

	_, err := NewRelayApp(cfg)
	assert.ErrorContains(t, err, "config validation failed")
}

func TestRelay_Lifecycle(t *testing.T) {
	r, err := NewRelay(relayConfig())
	require.NoError(t, err)

	assert.Empty(t, r.URL())
	assert.ErrorIs(t, r.Stop(context.Background()), ErrNotStarted)

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrAlreadyStarted)
	require.NotNil(t, r.Addr())
	assert.True(t, strings.HasPrefix(r.URL(), "ws://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(r.URL(), "/archiver"))

	require.NoError(t, r.Stop(context.Background()))
	require.NoError(t, r.Stop(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrRelayClosed)
}

func TestRelay_BridgesClient(t *testing.T) {
	r := startRelay(t, relayConfig())

	mc, err := hub.New(hub.Options{})
	require.NoError(t, err)
	defer mc.Close()

	kp, err := feed.GenerateKeyPair()
	require.NoError(t, err)
	f, err := mc.CreateFeed(kp)
	require.NoError(t, err)
	_, err = f.Append([]byte("hello"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	link, err := bridge.Dial(ctx, r.URL(), mc)
	require.NoError(t, err)
	defer link.Close()

	require.Eventually(t, func() bool {
		remote, ok := r.Manager().Lookup(mc.Key())
		if !ok {
			return false
		}
		rf := remote.Archiver().Feed(feed.DiscoveryKey(kp.Public))
		return rf != nil && rf.Len() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRelay_ServesMetrics(t *testing.T) {
	r := startRelay(t, relayConfig())

	resp, err := http.Get("http://" + r.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRelay_BadgerStorage(t *testing.T) {
	cfg := relayConfig()
	cfg.Storage.Mode = config.StorageModeBadger
	cfg.Storage.DataDir = t.TempDir()

	r := startRelay(t, cfg)
	mc, created, err := r.Manager().Get(randomKey(t))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotNil(t, mc)
}

func randomKey(t *testing.T) types.Key {
	t.Helper()
	kp, err := feed.GenerateKeyPair()
	require.NoError(t, err)
	return kp.Public
}
