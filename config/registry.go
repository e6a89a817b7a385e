package config

import (
	"errors"
	"time"
)

// RegistryConfig actor 可见性注册表配置
type RegistryConfig struct {
	// SettleDelay 依赖解决后到首次对账的等待时间
	//
	// 给同时到达的对端更新留出合并窗口，0 表示依赖解决后立即对账。
	SettleDelay Duration `json:"settle_delay"`

	// MaxCommitStreak 连续提交次数上限，超过后停止提交直到出现一次无变更对账
	MaxCommitStreak int `json:"max_commit_streak"`
}

// DefaultRegistryConfig 返回默认配置
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		SettleDelay:     Duration(time.Second),
		MaxCommitStreak: 16,
	}
}

// Validate 验证配置
func (c RegistryConfig) Validate() error {
	if c.SettleDelay < 0 {
		return errors.New("registry: settle_delay must not be negative")
	}
	if c.MaxCommitStreak <= 0 {
		return errors.New("registry: max_commit_streak must be positive")
	}
	return nil
}
