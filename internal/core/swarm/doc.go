// Package swarm 实现按话题组网的对端连接
//
// Swarm 监听一个 TCP 端口，在话题（feed 的发现密钥）下广播自己并
// 拨号发现的对端。每条连接上运行一条复制会话，握手中携带本端的
// 身份数据 {"name", "key"}。握手完成后连接事件依次派发给
// OnConnection 注册的处理器。
//
// Connector 是标准的处理器：身份数据有效时把对端 feed 注册进归档器
// 并宣告该 actor，数据缺失或格式错误时只记录日志。
package swarm
