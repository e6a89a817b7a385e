package metrics

// Stats 中继流量快照
//
// In 指从 websocket 一侧进入归档器的方向，Out 指反方向。
type Stats struct {
	TotalIn  int64   // 总入站字节
	TotalOut int64   // 总出站字节
	RateIn   float64 // 入站速率（字节/秒）
	RateOut  float64 // 出站速率（字节/秒）
	Sessions int     // 当前中继会话数
	Hubs     int     // 已创建的 multicore 数
}
