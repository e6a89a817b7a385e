package swarm

import (
	"errors"
)

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm: closed")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("swarm: invalid config")

	// ErrDialToSelf 连接到了自己
	ErrDialToSelf = errors.New("swarm: dial to self attempted")

	// ErrDuplicateConnection 与同一对端已有连接
	ErrDuplicateConnection = errors.New("swarm: duplicate connection")

	// ErrHandshakeTimeout 等待对端握手超时
	ErrHandshakeTimeout = errors.New("swarm: handshake timeout")

	// ErrMissingUserData 对端没有携带身份数据
	ErrMissingUserData = errors.New("swarm: missing user data")

	// ErrMalformedUserData 对端身份数据无法解析
	ErrMalformedUserData = errors.New("swarm: malformed user data")
)
