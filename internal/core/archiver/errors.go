package archiver

import "errors"

var (
	// ErrClosed 归档器已关闭
	ErrClosed = errors.New("archiver: closed")

	// ErrConflictingOptions 同时给出只读公钥与可写密钥对且二者不一致
	ErrConflictingOptions = errors.New("archiver: changes key and key pair disagree")
)
