// Package types 定义 multicore 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - key.go    - Key, DiscoveryKey 及其十六进制编解码
//   - errors.go - 公共错误定义
//   - events.go - 进程内事件（EvtFeedAdded, EvtAnnounceActor, EvtPeerConnected）
//
// # 外部表示
//
// Key 与 DiscoveryKey 对外一律使用 64 位小写十六进制字符串，
// 日志中使用 Short() 返回的前 8 个字符。
package types
