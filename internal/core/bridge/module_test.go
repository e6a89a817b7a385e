package bridge

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/metrics"
)

func TestModule_Lifecycle(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Bridge.ListenAddr = "127.0.0.1:0"
	cfg.Swarm.Enable = false

	var (
		m   *Manager
		srv *http.Server
		ln  *Listener
	)
	app := fxtest.New(t,
		fx.NopLogger,
		fx.Supply(cfg),
		metrics.Module(),
		Module(),
		fx.Populate(&m, &srv, &ln),
	)
	require.Nil(t, ln.Addr())
	app.RequireStart()
	require.NotNil(t, ln.Addr())
	assert.NotEqual(t, "127.0.0.1:0", ln.Addr().String())

	require.NotNil(t, m)
	_, created, err := m.Get(randomKey(t))
	require.NoError(t, err)
	assert.True(t, created)

	// /metrics 与中继共用同一个 mux
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cfg.Diagnostics.MetricsPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "multicore_bridge_hubs 1")

	app.RequireStop()
	_, _, err = m.Get(randomKey(t))
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestProvideDiscoverer_Disabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Swarm.Enable = false

	lc := fxtest.NewLifecycle(t)
	d, err := ProvideDiscoverer(DiscovererParams{Lifecycle: lc, UnifiedCfg: cfg})
	require.NoError(t, err)
	assert.Nil(t, d)
}
