package config

import (
	"errors"
	"net"
	"time"
)

// SwarmConfig 对等网络配置
//
// 每个会话（multicore）加入一个以 archiver 发现密钥命名的 swarm，
// 通过 mDNS 或静态地址找到对端并直接复制。
type SwarmConfig struct {
	// Enable 是否加入 swarm
	Enable bool `json:"enable"`

	// ListenAddr TCP 监听地址，端口 0 表示随机
	ListenAddr string `json:"listen_addr"`

	// EnableMDNS 启用局域网 mDNS 发现
	EnableMDNS bool `json:"enable_mdns"`

	// ServiceTag mDNS 服务名
	ServiceTag string `json:"service_tag"`

	// QueryInterval mDNS 查询间隔
	QueryInterval Duration `json:"query_interval"`

	// Peers 静态对端地址（host:port）
	Peers []string `json:"peers,omitempty"`

	// DialTimeout 拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// DialCacheSize 已拨地址去重缓存大小
	DialCacheSize int `json:"dial_cache_size"`
}

// DefaultSwarmConfig 返回默认配置
func DefaultSwarmConfig() SwarmConfig {
	return SwarmConfig{
		Enable:        true,
		ListenAddr:    "0.0.0.0:0",
		EnableMDNS:    true,
		ServiceTag:    "_multicore._tcp",
		QueryInterval: Duration(10 * time.Second),
		DialTimeout:   Duration(5 * time.Second),
		DialCacheSize: 256,
	}
}

// Validate 验证配置
func (c SwarmConfig) Validate() error {
	if !c.Enable {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return errors.New("swarm: invalid listen_addr")
	}
	if c.EnableMDNS && c.ServiceTag == "" {
		return errors.New("swarm: service_tag cannot be empty when mdns is enabled")
	}
	if c.EnableMDNS && c.QueryInterval <= 0 {
		return errors.New("swarm: query_interval must be positive")
	}
	for _, p := range c.Peers {
		if _, _, err := net.SplitHostPort(p); err != nil {
			return errors.New("swarm: invalid peer address " + p)
		}
	}
	if c.DialTimeout <= 0 {
		return errors.New("swarm: dial_timeout must be positive")
	}
	if c.DialCacheSize <= 0 {
		return errors.New("swarm: dial_cache_size must be positive")
	}
	return nil
}
