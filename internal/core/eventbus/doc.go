// Package eventbus 实现进程内事件总线
//
// 提供类型安全的事件发布/订阅机制：
//   - 多订阅者，按 Go 类型路由
//   - 非阻塞发射，慢消费者丢弃并告警
//   - 有状态模式（Stateful），新订阅者收到最近一次事件
//
// # 快速开始
//
//	bus := eventbus.NewBus()
//
//	sub, _ := bus.Subscribe(new(archiver.EvtFeedAdded))
//	defer sub.Close()
//
//	go func() {
//	    for evt := range sub.Out() {
//	        e := evt.(archiver.EvtFeedAdded)
//	        // 处理事件
//	    }
//	}()
//
// # 使用方
//
//   - archiver：EvtFeedAdded，每个新 feed 恰好一次
//   - multicore：EvtAnnounceActor，连接握手中宣告的 actor
package eventbus
