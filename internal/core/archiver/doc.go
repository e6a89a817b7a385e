// Package archiver 实现 feed 集合（归档器）
//
// 归档器以发现密钥为索引维护一组 feed，外加一个记录自身变更历史的
// changes feed。一条复制会话同时复制集合中的所有 feed；会话打开后
// 新加入的 feed 会补发给已连接的对端。
//
// changes feed 的每个条目是一条 JSON 记录：
//
//	{"type":"add","key":"<hex>"}
//	{"type":"add","discoveryKey":"<hex>"}
//
// 只读副本在复制到这些记录时会跟踪同样的 feed，所以归档器的所有
// 副本最终跟踪同一个集合。
package archiver
