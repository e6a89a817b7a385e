package identity

import "errors"

var (
	// ErrInvalidName 名称为空
	ErrInvalidName = errors.New("identity: empty name")

	// ErrCorrupted 保存的值无法解析
	ErrCorrupted = errors.New("identity: stored value corrupted")
)
