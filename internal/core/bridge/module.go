package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/discovery"
	"github.com/dep2p/go-multicore/internal/core/metrics"
	"github.com/dep2p/go-multicore/internal/core/multicore"
	"github.com/dep2p/go-multicore/internal/core/replication"
	"github.com/dep2p/go-multicore/internal/core/storage/kv"
	"github.com/dep2p/go-multicore/internal/core/swarm"
)

// shutdownTimeout HTTP 服务关闭等待时间
const shutdownTimeout = 5 * time.Second

// Params Bridge 模块依赖参数
type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle
	UnifiedCfg *config.Config       `optional:"true"`
	Feeds      *kv.Store            `name:"feeds" optional:"true"`
	Metrics    *metrics.Bridge      `optional:"true"`
	Registry   *prometheus.Registry `optional:"true"`
	Discoverer discovery.Discoverer `optional:"true"`
}

// Result Bridge 模块提供的结果
type Result struct {
	fx.Out

	Manager  *Manager
	Server   *Server
	HTTP     *http.Server
	Listener *Listener
}

// Listener 记录中继服务实际监听的地址
type Listener struct {
	mu   sync.Mutex
	addr net.Addr
}

// Addr 实际监听地址，服务未启动时为 nil
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

func (l *Listener) set(addr net.Addr) {
	l.mu.Lock()
	l.addr = addr
	l.mu.Unlock()
}

// Module 返回 Bridge Fx 模块
//
// 提供:
//   - *Manager: 会话管理器
//   - *Server: websocket 中继处理器
//   - *http.Server: 中继 HTTP 服务（含 /metrics）
//   - *Listener: 实际监听地址
//
// 生命周期:
//   - OnStart: 监听 Bridge.ListenAddr
//   - OnStop: 关闭 HTTP 服务、中继连接与所有会话
func Module() fx.Option {
	return fx.Module("bridge",
		fx.Provide(
			ProvideDiscoverer,
			ProvideBridge,
		),
	)
}

// DiscovererParams 发现器依赖参数
type DiscovererParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	UnifiedCfg *config.Config `optional:"true"`
}

// ProvideDiscoverer 按统一配置提供发现器
func ProvideDiscoverer(p DiscovererParams) (discovery.Discoverer, error) {
	cfg := p.UnifiedCfg
	if cfg == nil {
		cfg = config.NewConfig()
	}
	d, err := swarm.DiscovererFromUnified(cfg)
	if err != nil || d == nil {
		return d, err
	}
	p.Lifecycle.Append(fx.StopHook(d.Close))
	return d, nil
}

// ProvideBridge 组装会话管理器、中继处理器与 HTTP 服务
func ProvideBridge(p Params) Result {
	cfg := p.UnifiedCfg
	if cfg == nil {
		cfg = config.NewConfig()
	}

	base := multicore.Options{
		Discoverer: p.Discoverer,
		Swarm:      swarm.ConfigFromUnified(cfg),
		Replication: replication.Options{
			Window:    cfg.Archiver.RequestWindow,
			SendQueue: cfg.Archiver.SendQueue,
		},
	}

	var feeds *kv.Store
	if cfg.Storage.Mode == config.StorageModeBadger {
		feeds = p.Feeds
	}

	var mopts []ManagerOption
	if cfg.Swarm.Enable {
		mopts = append(mopts, WithSwarm())
	}
	var sopts []ServerOption
	if p.Metrics != nil {
		mopts = append(mopts, WithMetrics(p.Metrics))
		sopts = append(sopts, WithServerMetrics(p.Metrics))
	}

	manager := NewManager(NewHubFactory(base, feeds), mopts...)
	server := NewServer(manager, ConfigFromUnified(cfg), sopts...)

	mux := http.NewServeMux()
	mux.Handle(cfg.Bridge.PathPrefix, server)
	if cfg.Diagnostics.EnableMetrics && p.Registry != nil {
		mux.Handle(cfg.Diagnostics.MetricsPath, metrics.Handler(p.Registry))
	}
	srv := &http.Server{
		Addr:              cfg.Bridge.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener := &Listener{}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				logger.Error("中继监听失败", "addr", srv.Addr, "error", err)
				return err
			}
			listener.set(ln.Addr())
			logger.Info("中继服务已启动", "addr", ln.Addr().String(), "path", cfg.Bridge.PathPrefix)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("中继服务异常退出", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("正在关闭中继服务")
			ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return multierr.Combine(
				srv.Shutdown(ctx),
				server.Close(),
				manager.Close(),
			)
		},
	})

	return Result{
		Manager:  manager,
		Server:   server,
		HTTP:     srv,
		Listener: listener,
	}
}
