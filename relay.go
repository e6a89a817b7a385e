package multicore

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/bridge"
	"github.com/dep2p/go-multicore/pkg/lib/log"
)

var logger = log.Logger("multicore")

// startTimeout 启动超时
const startTimeout = 30 * time.Second

// Relay websocket 中继进程
type Relay struct {
	cfg      *config.Config
	app      *fx.App
	manager  *bridge.Manager
	listener *bridge.Listener

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewRelay 创建中继（未启动）
func NewRelay(cfg *config.Config, extra ...fx.Option) (*Relay, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	r := &Relay{cfg: cfg}

	opts := append([]fx.Option{}, extra...)
	opts = append(opts, fx.Populate(&r.manager, &r.listener))
	app, err := NewRelayApp(cfg, opts...)
	if err != nil {
		return nil, err
	}
	r.app = app
	return r, nil
}

// Start 启动中继：打开存储并开始监听
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRelayClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	logger.Info("正在启动中继", "version", Version, "addr", r.cfg.Bridge.ListenAddr)
	if err := r.app.Start(startCtx); err != nil {
		logger.Error("中继启动失败", "error", err)
		return fmt.Errorf("start relay: %w", err)
	}
	r.started = true
	logger.Info("中继已启动", "url", r.urlLocked())
	return nil
}

// Stop 停止中继，关闭全部连接与会话
//
// 停止后不能再次启动。
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	if !r.started {
		return ErrNotStarted
	}
	r.closed = true

	logger.Info("正在停止中继")
	if err := r.app.Stop(ctx); err != nil {
		logger.Error("停止中继失败", "error", err)
		return fmt.Errorf("stop relay: %w", err)
	}
	logger.Info("中继已停止")
	return nil
}

// Done 收到 SIGINT/SIGTERM 时可读
func (r *Relay) Done() <-chan os.Signal {
	return r.app.Done()
}

// Manager 会话管理器
func (r *Relay) Manager() *bridge.Manager {
	return r.manager
}

// Addr 实际监听地址，未启动时为 nil
func (r *Relay) Addr() net.Addr {
	return r.listener.Addr()
}

// URL 供客户端使用的中继地址（不含会话密钥）
//
// 例如 ws://127.0.0.1:8080/archiver，未启动时为空。
func (r *Relay) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.urlLocked()
}

func (r *Relay) urlLocked() string {
	addr := r.listener.Addr()
	if addr == nil {
		return ""
	}
	host := addr.String()
	if tcp, ok := addr.(*net.TCPAddr); ok && tcp.IP.IsUnspecified() {
		host = net.JoinHostPort("127.0.0.1", fmt.Sprint(tcp.Port))
	}
	return "ws://" + host + strings.TrimSuffix(r.cfg.Bridge.PathPrefix, "/")
}
