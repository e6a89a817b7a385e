// Package replication 实现 feed 复制协议
//
// 一条连接（TCP、websocket 或内存管道）上跑一个 Session：
//
//	A                                   B
//	|-- Handshake{id, userData} ------->|
//	|<------- Handshake{id, userData} --|
//	|-- Feed{dk, key} ----------------->|   双方声明持有的 feed
//	|<----------------- Feed{dk, key} --|   同一 dk 两端都声明后通道打开
//	|-- Have{dk, len} ----------------->|
//	|<-------- Request{dk, start, end} -|   落后的一方按窗口拉取
//	|-- Data{dk, i, value, sig} ------->|
//
// 帧格式为 uvarint 长度前缀 + 1 字节类型 + protobuf wire 编码的消息体。
// 复制流不加密（Options.Encrypt 必须为 false）。
package replication
