package config

import (
	"errors"
	"net/url"
	"strings"
)

// BridgeConfig websocket 中继桥配置
type BridgeConfig struct {
	// ListenAddr 中继 HTTP 监听地址
	ListenAddr string `json:"listen_addr"`

	// PathPrefix 中继端点前缀，完整路径为 {PathPrefix}{hexKey}
	PathPrefix string `json:"path_prefix"`

	// RelayURL 客户端连接的中继地址（ws:// 或 wss://）
	RelayURL string `json:"relay_url,omitempty"`

	// TraceChunks 逐块记录经过桥的数据（debug 级别）
	TraceChunks bool `json:"trace_chunks"`

	// ReadBufferSize / WriteBufferSize websocket 缓冲区
	ReadBufferSize  int `json:"read_buffer_size"`
	WriteBufferSize int `json:"write_buffer_size"`

	// AllowedOrigins 允许的 Origin，空表示不限制
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// DefaultBridgeConfig 返回默认配置
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		ListenAddr:      ":8080",
		PathPrefix:      "/archiver/",
		TraceChunks:     false,
		ReadBufferSize:  32 << 10,
		WriteBufferSize: 32 << 10,
	}
}

// Validate 验证配置
func (c BridgeConfig) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("bridge: listen_addr cannot be empty")
	}
	if !strings.HasPrefix(c.PathPrefix, "/") || !strings.HasSuffix(c.PathPrefix, "/") {
		return errors.New("bridge: path_prefix must start and end with '/'")
	}
	if c.RelayURL != "" {
		u, err := url.Parse(c.RelayURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return errors.New("bridge: relay_url must be a ws:// or wss:// URL")
		}
	}
	if c.ReadBufferSize <= 0 || c.WriteBufferSize <= 0 {
		return errors.New("bridge: buffer sizes must be positive")
	}
	return nil
}
