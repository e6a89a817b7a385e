package swarm

import (
	"fmt"
	"net"
	"time"

	"github.com/dep2p/go-multicore/config"
)

// Config Swarm 配置
type Config struct {
	// ListenAddr TCP 监听地址
	ListenAddr string

	// DialTimeout 拨号超时
	DialTimeout time.Duration

	// HandshakeTimeout 等待复制握手的超时
	HandshakeTimeout time.Duration

	// DialCacheSize 已拨地址去重缓存大小
	DialCacheSize int

	// Window / SendQueue 复制会话参数，0 使用默认值
	Window    int
	SendQueue int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ListenAddr:       "0.0.0.0:0",
		DialTimeout:      5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		DialCacheSize:    256,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: listen addr %q", ErrInvalidConfig, c.ListenAddr)
	}
	if c.DialTimeout <= 0 || c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.DialCacheSize <= 0 {
		return fmt.Errorf("%w: dial cache size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ConfigFromUnified 从统一配置构建
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.ListenAddr = cfg.Swarm.ListenAddr
	c.DialTimeout = cfg.Swarm.DialTimeout.Duration()
	c.DialCacheSize = cfg.Swarm.DialCacheSize
	c.HandshakeTimeout = cfg.Archiver.HandshakeTimeout.Duration()
	c.Window = cfg.Archiver.RequestWindow
	c.SendQueue = cfg.Archiver.SendQueue
	return c
}
