// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，带 DefaultXxxConfig 与 Validate
//   - 支持从 JSON 加载和保存配置，环境变量（MULTICORE_ 前缀）覆盖
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Storage.Mode = config.StorageModeBadger
//	cfg.Bridge.ListenAddr = ":8080"
//
//	// 从 JSON 文件加载
//	cfg, err := config.LoadFile("multicore.json")
package config

import "errors"

// ErrNilConfig 配置为空
var ErrNilConfig = errors.New("config is nil")

// Config 是 multicore 的完整配置结构
//
// 配置按照功能模块组织：
//   - Identity: 本地 actor 名称
//   - Storage: feed 与身份存储
//   - Archiver: feed 集合与复制会话
//   - Swarm: 对等发现与直连
//   - Bridge: websocket 中继桥
//   - Registry: actor 可见性注册表
//   - Log: 日志
//   - Diagnostics: 指标
type Config struct {
	// Identity 本地身份配置
	Identity IdentityConfig `json:"identity"`

	// Storage 存储配置
	Storage StorageConfig `json:"storage"`

	// Archiver feed 集合与复制配置
	Archiver ArchiverConfig `json:"archiver"`

	// Swarm 对等网络配置
	Swarm SwarmConfig `json:"swarm"`

	// Bridge 中继桥配置
	Bridge BridgeConfig `json:"bridge"`

	// Registry actor 注册表配置
	Registry RegistryConfig `json:"registry"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// Diagnostics 诊断配置
	Diagnostics DiagnosticsConfig `json:"diagnostics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:    DefaultIdentityConfig(),
		Storage:     DefaultStorageConfig(),
		Archiver:    DefaultArchiverConfig(),
		Swarm:       DefaultSwarmConfig(),
		Bridge:      DefaultBridgeConfig(),
		Registry:    DefaultRegistryConfig(),
		Log:         DefaultLogConfig(),
		Diagnostics: DefaultDiagnosticsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}

	validators := []interface{ Validate() error }{
		c.Identity,
		c.Storage,
		c.Archiver,
		c.Swarm,
		c.Bridge,
		c.Registry,
		c.Log,
		c.Diagnostics,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
