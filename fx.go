package multicore

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/bridge"
	"github.com/dep2p/go-multicore/internal/core/metrics"
	"github.com/dep2p/go-multicore/internal/core/storage"
	"github.com/dep2p/go-multicore/pkg/lib/log"
)

var fxLogger = log.Logger("multicore/fx")

// NewRelayApp 构建中继进程的 Fx 应用
//
// 条件加载：
//   - storage: 仅 badger 模式，会话 feed 落盘；memory 模式每个会话使用内存存储
//   - metrics: Diagnostics.EnableMetrics 为 true 时加载，并在中继 mux 上挂载 /metrics
//   - bridge: 必须加载
//
// extra 追加到模块之后，通常是 fx.Populate 或测试替身。
func NewRelayApp(cfg *config.Config, extra ...fx.Option) (*fx.App, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	opts := []fx.Option{
		fx.Supply(cfg),
	}
	if cfg.Storage.Mode == config.StorageModeBadger {
		fxLogger.Debug("加载存储模块", "dir", cfg.Storage.DataDir)
		opts = append(opts, storage.Module())
	}
	if cfg.Diagnostics.EnableMetrics {
		fxLogger.Debug("加载指标模块", "path", cfg.Diagnostics.MetricsPath)
		opts = append(opts, metrics.Module())
	}
	opts = append(opts, bridge.Module())
	opts = append(opts, extra...)
	opts = append(opts, fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}))

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return app, nil
}
