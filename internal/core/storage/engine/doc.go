// Package engine 定义存储引擎的配置与错误
//
// 引擎接口本身位于 pkg/interfaces.Engine，实现位于 engine/badger。
package engine
