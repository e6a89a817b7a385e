// Package feed 实现单写者、只追加的签名日志
//
// 每个 feed 由 ed25519 公钥标识，网络上使用由公钥派生的发现密钥。
// 条目按哈希链串联：
//
//	root_i = blake3(root_{i-1} || value_i)
//	sig_i  = ed25519(secret, root_i)
//
// 副本只接受索引连续且签名有效的条目，因此任意副本上的前缀
// 都是写者真实写出的前缀。
//
// 存储：MemoryStorage（进程内）与 KVStorage（badger，经 kv.Store）。
package feed
