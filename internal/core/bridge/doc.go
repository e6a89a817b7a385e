// Package bridge 把外部字节流接入归档器的复制流
//
// 服务端角色：Server 处理 GET {PathPrefix}{hexKey}，按会话标识从 Manager
// 取得（首次引用时创建）multicore，升级为 websocket 后与一条新的复制流双向对接。
// 新建的会话还会加入 swarm，并把连接事件交给 swarm.Connector。
//
// 客户端角色：Dial 连接中继端点 {relayURL}/{本地归档器公钥}，
// 让无法直接参与发现的节点经由中继加入同一个 feed 集合。
//
//	client ──ws──▶ Server ──Pipe──▶ Archiver.Replicate()
//	                  │
//	                  └── Manager: key → Multicore (memoized)
//
// 中继不对字节流加任何帧；任一端关闭或出错时两端都会关闭，不做重连。
package bridge
