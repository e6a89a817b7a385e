// Package document 实现基于 feed 的最小合并文档
//
// 文档由一个源 feed 标识，每个参与者（actor）把自己的变更追加到自己的 feed。
// 读取端在变更的依赖全部到达后按 (Clock, Actor, Seq) 排序重放，得到一致的合并结果。
// 根下的 "actors" 映射中出现的 actor 会被自动读取。
//
// 支持的操作：
//
//	set    设置值（缺失的中间 map 自动创建）
//	mkmap  创建 map，已存在时不变
//	del    删除值
//
// 不同 actor 并发写同一个键时，合并顺序靠后的写入生效。
package document
