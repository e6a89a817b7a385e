package bridge

import "errors"

var (
	// ErrManagerClosed 管理器已关闭
	ErrManagerClosed = errors.New("bridge: manager closed")

	// ErrInvalidKey 路径中的会话标识无效
	ErrInvalidKey = errors.New("bridge: invalid session key")
)
