// Package interfaces 定义 multicore 的公共接口
//
// 采用扁平命名，一个接口文件对应一个实现目录：
//   - eventbus.go  - 进程内事件总线（internal/core/eventbus）
//   - storage.go   - 键值存储引擎（internal/core/storage）
//   - keystore.go  - 本地身份持久化（internal/core/identity）
package interfaces
