package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/dep2p/go-multicore/config"
)

// Config 指标配置
type Config struct {
	// Enabled 是否暴露 /metrics
	Enabled bool
	// Path 指标路径
	Path string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Path:    "/metrics",
	}
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Enabled: cfg.Diagnostics.EnableMetrics,
		Path:    cfg.Diagnostics.MetricsPath,
	}
}

// NewRegistry 创建带进程与 Go 运行时采集器的注册表
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回注册表的 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	Registry *prometheus.Registry
}

// NewBridgeFromParams 从参数创建桥指标
func NewBridgeFromParams(p Params) *Bridge {
	return NewBridge(p.Registry, nil)
}

// Module 是 metrics 的 Fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(
			NewRegistry,
			NewBridgeFromParams,
		),
	)
}
