package badger

import (
	"github.com/dep2p/go-multicore/internal/core/storage/engine"
	"github.com/dgraph-io/badger/v4"
)

// WriteBatch BadgerDB 批量写入实现
//
// Set/Delete 的错误被记住并在 Commit 时返回。
type WriteBatch struct {
	db    *Engine
	batch *badger.WriteBatch
	err   error
}

// Put 添加写入操作
func (b *WriteBatch) Put(key, value []byte) {
	if b.err != nil {
		return
	}
	if len(key) == 0 {
		b.err = engine.ErrEmptyKey
		return
	}
	b.err = b.batch.Set(key, value)
}

// Delete 添加删除操作
func (b *WriteBatch) Delete(key []byte) {
	if b.err != nil {
		return
	}
	if len(key) == 0 {
		b.err = engine.ErrEmptyKey
		return
	}
	b.err = b.batch.Delete(key)
}

// Commit 提交批量写
func (b *WriteBatch) Commit() error {
	if b.db.closed.Load() {
		b.batch.Cancel()
		return engine.ErrClosed
	}
	if b.err != nil {
		b.batch.Cancel()
		err := b.err
		b.Reset()
		return convertError(err)
	}

	err := b.batch.Flush()
	b.batch = b.db.db.NewWriteBatch()
	return convertError(err)
}

// Reset 丢弃尚未提交的操作
func (b *WriteBatch) Reset() {
	b.batch.Cancel()
	b.batch = b.db.db.NewWriteBatch()
	b.err = nil
}
