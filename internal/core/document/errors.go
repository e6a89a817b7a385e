package document

import "errors"

var (
	// ErrReadOnly 文档没有本地可写 feed
	ErrReadOnly = errors.New("document: read only")

	// ErrClosed 文档已关闭
	ErrClosed = errors.New("document: closed")

	// ErrEmptyChange 变更不含任何操作
	ErrEmptyChange = errors.New("document: empty change")

	// ErrInvalidPath 路径为空或经过非 map 节点
	ErrInvalidPath = errors.New("document: invalid path")
)
