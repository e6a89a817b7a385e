// Package actors 实现 actor 可见性注册表
//
// 文档根下的 actors 映射记录每个 actor 知道哪些其他 actor：
//
//	actors[A] = {B: true, C: true}
//
// 每个 actor 只写自己的条目。注册表在依赖解决并等待 SettleDelay 后首次对账，
// 之后每次文档更新都重新对账：
//
//  1. 版本号与上次相同则跳过
//  2. seen = actors 映射中除自己以外的键
//  3. seen 与 actors[自己] 相同则停止
//  4. 否则以一次原子变更写入 actors[自己] = seen；首次运行时同时创建 actors 映射
//
// 自身提交触发的更新会在第 3 步停止。反复提交同一目标超过 MaxCommitStreak 次时
// 停止提交并返回 ErrNotConverging。
package actors
