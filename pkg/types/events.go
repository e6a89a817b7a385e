// Package types 定义 multicore 公共类型
//
// 本文件定义进程内事件类型，经 EventBus 按类型路由。
package types

import (
	"time"
)

// ============================================================================
//                              Event - 事件接口
// ============================================================================

// Event 基础事件接口
type Event interface {
	// Type 返回事件类型
	Type() string

	// Timestamp 返回事件时间戳
	Timestamp() time.Time
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType string
	Time      time.Time
}

// Type 返回事件类型
func (e BaseEvent) Type() string {
	return e.EventType
}

// Timestamp 返回事件时间戳
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Time:      time.Now(),
	}
}

// 事件类型常量
const (
	EventTypeFeedAdded     = "feed.added"
	EventTypeAnnounceActor = "actor.announce"
	EventTypePeerConnected = "swarm.peer_connected"
)

// ============================================================================
//                              feed 事件
// ============================================================================

// EvtFeedAdded 归档器新跟踪了一个 feed
//
// 每个发现密钥只发出一次。
type EvtFeedAdded struct {
	BaseEvent
	// Archiver 归档器 changes feed 的公钥
	Archiver Key
	// DiscoveryKey 新 feed 的发现密钥
	DiscoveryKey DiscoveryKey
	// Key 新 feed 的公钥，HasKey 为 false 时无效
	Key    Key
	HasKey bool
}

// ============================================================================
//                              actor 事件
// ============================================================================

// EvtAnnounceActor 发现了一个对端 actor
type EvtAnnounceActor struct {
	BaseEvent
	// Name 对端声明的名字
	Name string
	// Key 对端 feed 的公钥
	Key Key
}

// EvtPeerConnected 群组中一条连接完成握手
type EvtPeerConnected struct {
	BaseEvent
	// Topic 连接所属的发现密钥
	Topic DiscoveryKey
	// RemoteAddr 对端地址
	RemoteAddr string
	// Outbound 是否由本端发起
	Outbound bool
}
