// Package metrics 提供中继桥的监控指标
//
// 指标通过 prometheus 暴露：
//
//	multicore_bridge_bytes_total{direction}
//	multicore_bridge_chunks_total{direction}
//	multicore_bridge_sessions
//	multicore_bridge_hubs
//	multicore_bridge_pipe_errors_total
//
// 此外 Bridge 用 RateMeter 维护最近 60 秒的流量速率，供日志与诊断使用。
//
//	reg := metrics.NewRegistry()
//	m := metrics.NewBridge(reg, nil)
//	http.Handle("/metrics", metrics.Handler(reg))
package metrics
