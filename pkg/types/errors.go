// Package types 定义 multicore 的基础类型
//
// 本文件定义所有公共错误类型。
package types

import "errors"

// ============================================================================
//                              Key 相关错误
// ============================================================================

var (
	// ErrInvalidKey 无效的公钥
	ErrInvalidKey = errors.New("invalid key: must be 64 hex chars")

	// ErrInvalidDiscoveryKey 无效的发现密钥
	ErrInvalidDiscoveryKey = errors.New("invalid discovery key: must be 64 hex chars")
)
