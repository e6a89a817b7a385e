// Package storage 提供 multicore 的存储层
//
// 结构：
//   - engine/        配置与错误
//   - engine/badger/ BadgerDB 实现（磁盘 / 内存模式）
//   - kv/            前缀隔离的 KV 存储
//
// feed 条目经 feed.KVStorage 落在 "f/" 前缀下，
// 本地身份经 identity.KVKeystore 落在 "i/" 前缀下。
package storage
