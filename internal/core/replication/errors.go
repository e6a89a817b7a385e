package replication

import "errors"

var (
	// ErrEncryptionUnsupported 不支持加密复制
	ErrEncryptionUnsupported = errors.New("replication: encrypted replication is not supported")

	// ErrFrameTooLarge 帧长度超过上限
	ErrFrameTooLarge = errors.New("replication: frame too large")

	// ErrUnknownMessage 未知消息类型
	ErrUnknownMessage = errors.New("replication: unknown message type")

	// ErrProtocol 协议顺序错误（例如首帧不是握手）
	ErrProtocol = errors.New("replication: protocol violation")

	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("replication: session closed")
)
