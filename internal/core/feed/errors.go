package feed

import "errors"

var (
	// ErrNotWritable feed 没有私钥
	ErrNotWritable = errors.New("feed: not writable")

	// ErrKeyUnknown 只知道发现密钥，无法校验条目
	ErrKeyUnknown = errors.New("feed: public key unknown")

	// ErrKeyMismatch 公钥与发现密钥或已知公钥不一致
	ErrKeyMismatch = errors.New("feed: key mismatch")

	// ErrOutOfOrder 远端条目索引不连续
	ErrOutOfOrder = errors.New("feed: entry out of order")

	// ErrBadSignature 条目签名校验失败
	ErrBadSignature = errors.New("feed: bad signature")

	// ErrNotFound 条目不存在
	ErrNotFound = errors.New("feed: entry not found")

	// ErrInvalidSecret 私钥格式错误
	ErrInvalidSecret = errors.New("feed: invalid secret key")

	// ErrCorrupted 存储内容与链式哈希不符
	ErrCorrupted = errors.New("feed: storage corrupted")
)
