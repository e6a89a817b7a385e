package config

import (
	"errors"
	"time"
)

// ArchiverConfig feed 集合与复制会话配置
type ArchiverConfig struct {
	// Encrypt 复制流加密
	//
	// 浏览器端不支持加密复制，必须为 false。保留该字段使选择显式可见。
	Encrypt bool `json:"encrypt"`

	// RequestWindow 单次请求的最大条目数
	RequestWindow int `json:"request_window"`

	// SendQueue 每个会话的发送队列长度（帧）
	SendQueue int `json:"send_queue"`

	// HandshakeTimeout 等待对端握手的超时
	HandshakeTimeout Duration `json:"handshake_timeout"`
}

// DefaultArchiverConfig 返回默认配置
func DefaultArchiverConfig() ArchiverConfig {
	return ArchiverConfig{
		Encrypt:          false,
		RequestWindow:    32,
		SendQueue:        4096,
		HandshakeTimeout: Duration(10 * time.Second),
	}
}

// Validate 验证配置
func (c ArchiverConfig) Validate() error {
	if c.Encrypt {
		return errors.New("archiver: encrypted replication is not supported")
	}
	if c.RequestWindow <= 0 {
		return errors.New("archiver: request_window must be positive")
	}
	if c.SendQueue <= 0 {
		return errors.New("archiver: send_queue must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("archiver: handshake_timeout must be positive")
	}
	return nil
}
