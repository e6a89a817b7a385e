package multicore

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 中继未启动
	ErrNotStarted = errors.New("relay not started")

	// ErrAlreadyStarted 中继已启动
	ErrAlreadyStarted = errors.New("relay already started")

	// ErrRelayClosed 中继已关闭
	ErrRelayClosed = errors.New("relay closed")

	// ErrPeerClosed 对端已关闭
	ErrPeerClosed = errors.New("peer closed")

	// ────────────────────────────────────────────────────────────────────────
	// 文档相关错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrReadOnlyCreate 只读对端不能创建新文档
	ErrReadOnlyCreate = errors.New("read-only peer needs an existing document key")
)
