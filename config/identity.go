package config

import "errors"

// IdentityConfig 本地身份配置
type IdentityConfig struct {
	// Name actor 显示名称，随连接握手的 userData 一起发送
	Name string `json:"name"`

	// KeyName 文档密钥在 keystore 中的名称
	// 默认 "key"，与浏览器端 localStorage 的条目同名
	KeyName string `json:"key_name"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Name:    "anonymous",
		KeyName: "key",
	}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	if c.KeyName == "" {
		return errors.New("identity: key_name cannot be empty")
	}
	return nil
}
