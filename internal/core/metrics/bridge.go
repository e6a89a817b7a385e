package metrics

import (
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// 流量方向标签
const (
	// DirectionFromWeb websocket -> 归档器
	DirectionFromWeb = "from_web"
	// DirectionToWeb 归档器 -> websocket
	DirectionToWeb = "to_web"
)

const namespace = "multicore"

// Bridge 中继桥指标
type Bridge struct {
	Bytes      *prometheus.CounterVec
	Chunks     *prometheus.CounterVec
	Sessions   prometheus.Gauge
	Hubs       prometheus.Gauge
	PipeErrors prometheus.Counter

	in       *RateMeter
	out      *RateMeter
	sessions atomic.Int64
	hubs     atomic.Int64
}

// NewBridge 创建并注册指标，reg 为空时不注册
func NewBridge(reg prometheus.Registerer, clk clock.Clock) *Bridge {
	b := &Bridge{
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "bytes_total",
			Help:      "Bytes piped through the relay bridge.",
		}, []string{"direction"}),
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "chunks_total",
			Help:      "Chunks piped through the relay bridge.",
		}, []string{"direction"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "sessions",
			Help:      "Open relay sessions.",
		}),
		Hubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "hubs",
			Help:      "Archivers created by the relay.",
		}),
		PipeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "pipe_errors_total",
			Help:      "Relay pipes that ended with an error.",
		}),
		in:  NewRateMeter(clk),
		out: NewRateMeter(clk),
	}
	if reg != nil {
		reg.MustRegister(b.Bytes, b.Chunks, b.Sessions, b.Hubs, b.PipeErrors)
	}
	return b
}

// ObserveChunk 记录一个经过桥的数据块
func (b *Bridge) ObserveChunk(direction string, n int) {
	b.Bytes.WithLabelValues(direction).Add(float64(n))
	b.Chunks.WithLabelValues(direction).Inc()
	if direction == DirectionFromWeb {
		b.in.Add(int64(n))
	} else {
		b.out.Add(int64(n))
	}
}

// SessionOpened 中继会话开始
func (b *Bridge) SessionOpened() {
	b.sessions.Add(1)
	b.Sessions.Inc()
}

// SessionClosed 中继会话结束
func (b *Bridge) SessionClosed(err error) {
	b.sessions.Add(-1)
	b.Sessions.Dec()
	if err != nil {
		b.PipeErrors.Inc()
	}
}

// HubCreated 新建了一个 multicore
func (b *Bridge) HubCreated() {
	b.hubs.Add(1)
	b.Hubs.Inc()
}

// HubClosed 关闭了一个 multicore
func (b *Bridge) HubClosed() {
	b.hubs.Add(-1)
	b.Hubs.Dec()
}

// Snapshot 返回流量快照
func (b *Bridge) Snapshot() Stats {
	return Stats{
		TotalIn:  b.in.Total(),
		TotalOut: b.out.Total(),
		RateIn:   b.in.Rate(),
		RateOut:  b.out.Rate(),
		Sessions: int(b.sessions.Load()),
		Hubs:     int(b.hubs.Load()),
	}
}
