package actors

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-multicore/config"
)

// Config 注册表配置
type Config struct {
	// SettleDelay 依赖解决后到首次对账的等待时间，0 表示立即对账
	SettleDelay time.Duration

	// MaxCommitStreak 连续提交相同目标的次数上限
	MaxCommitStreak int

	// Clock 时钟，为空时使用系统时钟
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		SettleDelay:     time.Second,
		MaxCommitStreak: 16,
	}
}

// ConfigFromUnified 从统一配置创建
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.SettleDelay = cfg.Registry.SettleDelay.Duration()
	c.MaxCommitStreak = cfg.Registry.MaxCommitStreak
	return c
}
