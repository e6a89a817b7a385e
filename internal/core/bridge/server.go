package bridge

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/metrics"
	"github.com/dep2p/go-multicore/internal/core/replication"
	"github.com/dep2p/go-multicore/pkg/types"
)

// Config 中继服务配置
type Config struct {
	// PathPrefix 端点前缀，完整路径为 {PathPrefix}{hexKey}
	PathPrefix string

	// TraceChunks 以 debug 级别记录每个数据块
	TraceChunks bool

	// ReadBufferSize / WriteBufferSize websocket 缓冲区
	ReadBufferSize  int
	WriteBufferSize int

	// AllowedOrigins 允许的 Origin，空表示不限制
	AllowedOrigins []string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PathPrefix:      "/archiver/",
		ReadBufferSize:  32 << 10,
		WriteBufferSize: 32 << 10,
	}
}

// ConfigFromUnified 从统一配置创建
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		PathPrefix:      cfg.Bridge.PathPrefix,
		TraceChunks:     cfg.Bridge.TraceChunks,
		ReadBufferSize:  cfg.Bridge.ReadBufferSize,
		WriteBufferSize: cfg.Bridge.WriteBufferSize,
		AllowedOrigins:  cfg.Bridge.AllowedOrigins,
	}
}

// ============================================================================
//                              Server
// ============================================================================

// Server 中继服务端
//
// 每个 websocket 连接按路径中的会话标识取得（或创建）multicore，
// 等待归档器就绪后把连接与一条新的复制流对接。
type Server struct {
	cfg      Config
	manager  *Manager
	metrics  *metrics.Bridge
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// ServerOption 服务端选项
type ServerOption func(*Server)

// WithServerMetrics 设置指标
func WithServerMetrics(b *metrics.Bridge) ServerOption {
	return func(s *Server) {
		s.metrics = b
	}
}

// NewServer 创建中继服务端
func NewServer(manager *Manager, cfg Config, opts ...ServerOption) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		conns:   make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// ServeHTTP 实现 http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, s.cfg.PathPrefix) {
		http.NotFound(w, r)
		return
	}
	key, err := types.ParseKey(strings.TrimPrefix(r.URL.Path, s.cfg.PathPrefix))
	if err != nil {
		http.Error(w, ErrInvalidKey.Error(), http.StatusBadRequest)
		return
	}

	// 先完成升级：非 websocket 请求与被拒绝的来源不会创建会话
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写回错误响应
		logger.Debug("websocket 升级失败", "key", key.Short(), "error", err)
		return
	}

	mc, _, err := s.manager.Get(key)
	if err != nil {
		logger.Warn("获取会话失败", "key", key.Short(), "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		_ = ws.Close()
		return
	}

	conn := newWSConn(ws)
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	session := uuid.NewString()
	logger.Info("中继连接", "key", key.Short(), "session", session, "remote", ws.RemoteAddr().String())

	if err := waitReady(r.Context(), mc.Ready()); err != nil {
		_ = conn.Close()
		return
	}

	local, err := mc.Replicate(replication.Options{Encrypt: false})
	if err != nil {
		logger.Warn("打开复制流失败", "key", key.Short(), "error", err)
		_ = conn.Close()
		return
	}

	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	err = Pipe(conn, local, s.taps(session)...)
	if s.metrics != nil {
		s.metrics.SessionClosed(err)
	}
	logger.Info("pipe finished", "key", key.Short(), "session", session, "error", err)
}

// taps 返回每个连接的数据块观察器
func (s *Server) taps(session string) []Tap {
	var taps []Tap
	if s.metrics != nil {
		taps = append(taps, func(direction string, chunk []byte) {
			s.metrics.ObserveChunk(direction, len(chunk))
		})
	}
	if s.cfg.TraceChunks {
		taps = append(taps, traceTap(session))
	}
	return taps
}

// traceTap 以 debug 级别记录数据块
func traceTap(session string) Tap {
	return func(direction string, chunk []byte) {
		msg := "To web"
		if direction == metrics.DirectionFromWeb {
			msg = "From web"
		}
		logger.Debug(msg, "session", session, "bytes", len(chunk))
	}
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// Close 关闭所有中继连接并等待管道结束
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	return nil
}

// waitReady 等待就绪或上下文结束
func waitReady(ctx context.Context, ready <-chan struct{}) error {
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
