// Package interfaces - Storage 存储引擎接口
//
// 本文件定义键值存储引擎的公共接口。feed 条目与本地身份都落在
// 这一层之上，默认实现为 BadgerDB（磁盘或内存模式）。
package interfaces

// Engine 存储引擎
//
// 线程安全：实现必须保证所有方法的线程安全性。
type Engine interface {
	// Get 获取指定键的值，键不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Put 设置键值对，已存在则覆盖
	Put(key, value []byte) error

	// Delete 删除指定键（幂等）
	Delete(key []byte) error

	// Has 检查键是否存在
	Has(key []byte) (bool, error)

	// NewBatch 创建原子批量写
	NewBatch() Batch

	// NewPrefixIterator 创建前缀迭代器
	NewPrefixIterator(prefix []byte) Iterator

	// Close 关闭存储引擎（可重复调用）
	Close() error
}

// Batch 批量写
//
// Commit 之前的写入对读者不可见；Commit 要么全部生效要么全部不生效。
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Commit() error
	Reset()
}

// Iterator 前缀迭代器
//
// 使用方式：
//
//	it := engine.NewPrefixIterator(prefix)
//	defer it.Close()
//	for it.Next() {
//	    k, v := it.Key(), it.Value()
//	}
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close()
}
