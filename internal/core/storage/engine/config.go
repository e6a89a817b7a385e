package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config 存储引擎配置
type Config struct {
	// Path 数据目录路径（InMemory 为 false 时必需）
	Path string

	// InMemory 纯内存模式，进程退出后数据丢失
	//
	// 中继服务端默认使用内存模式，与浏览器端会话同生共死。
	InMemory bool

	// SyncWrites 是否同步写入
	SyncWrites bool

	// BlockCacheSize 块缓存大小（字节）
	BlockCacheSize int64

	// Compression ZSTD 压缩级别，0 表示禁用
	Compression int

	// GCInterval 值日志垃圾回收间隔，0 表示禁用
	GCInterval time.Duration

	// GCDiscardRatio 垃圾回收丢弃比例
	GCDiscardRatio float64
}

// DefaultConfig 返回磁盘模式默认配置
func DefaultConfig(path string) *Config {
	return &Config{
		Path:           path,
		BlockCacheSize: 64 << 20, // 64MB
		Compression:    1,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// MemoryConfig 返回内存模式配置
func MemoryConfig() *Config {
	return &Config{
		InMemory:       true,
		BlockCacheSize: 16 << 20,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.GCInterval > 0 && (c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1) {
		return fmt.Errorf("%w: gc discard ratio must be in (0,1)", ErrInvalidConfig)
	}
	return nil
}

// EnsureDir 确保数据目录存在
func (c *Config) EnsureDir() error {
	if c.InMemory {
		return nil
	}
	absPath, err := filepath.Abs(c.Path)
	if err != nil {
		return err
	}
	c.Path = absPath
	return os.MkdirAll(c.Path, 0o755)
}
