package storage

import (
	"path/filepath"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/storage/engine"
)

// ConfigFromUnified 从统一配置创建引擎配置
//
// memory 模式使用 badger 内存模式，badger 模式落盘到 DataDir/multicore.db。
func ConfigFromUnified(cfg *config.Config) *engine.Config {
	if cfg == nil {
		return engine.MemoryConfig()
	}

	s := cfg.Storage
	if s.Mode == config.StorageModeMemory {
		return engine.MemoryConfig()
	}

	ec := engine.DefaultConfig(filepath.Join(s.DataDir, "multicore.db"))
	ec.SyncWrites = s.SyncWrites
	ec.GCInterval = s.GCInterval.Duration()
	return ec
}
