package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestRateMeter_Window(t *testing.T) {
	clk := clock.NewMock()
	r := NewRateMeter(clk)

	r.Add(600)
	assert.Equal(t, int64(600), r.Total())
	assert.InDelta(t, 10.0, r.Rate(), 0.001)

	clk.Add(30 * time.Second)
	r.Add(600)
	assert.InDelta(t, 20.0, r.Rate(), 0.001)

	// 第一批数据滑出窗口
	clk.Add(45 * time.Second)
	assert.InDelta(t, 10.0, r.Rate(), 0.001)

	clk.Add(2 * time.Minute)
	assert.Zero(t, r.Rate())
	assert.Equal(t, int64(1200), r.Total())

	r.Reset()
	assert.Zero(t, r.Total())
}

func TestBridge_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := NewBridge(reg, clock.NewMock())

	b.ObserveChunk(DirectionFromWeb, 100)
	b.ObserveChunk(DirectionFromWeb, 50)
	b.ObserveChunk(DirectionToWeb, 10)

	assert.Equal(t, 150.0, testutil.ToFloat64(b.Bytes.WithLabelValues(DirectionFromWeb)))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.Chunks.WithLabelValues(DirectionFromWeb)))
	assert.Equal(t, 10.0, testutil.ToFloat64(b.Bytes.WithLabelValues(DirectionToWeb)))

	b.SessionOpened()
	b.SessionOpened()
	b.SessionClosed(nil)
	b.SessionClosed(errors.New("boom"))
	b.HubCreated()

	assert.Equal(t, 0.0, testutil.ToFloat64(b.Sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.PipeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Hubs))

	s := b.Snapshot()
	assert.Equal(t, int64(150), s.TotalIn)
	assert.Equal(t, int64(10), s.TotalOut)
	assert.Equal(t, 1, s.Hubs)
	assert.Zero(t, s.Sessions)
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := NewRegistry()
	b := NewBridge(reg, nil)
	b.ObserveChunk(DirectionToWeb, 7)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `multicore_bridge_bytes_total{direction="to_web"} 7`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestModule(t *testing.T) {
	var b *Bridge
	app := fxtest.New(t,
		Module(),
		fx.NopLogger,
		fx.Populate(&b),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, b)
}
