package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// 存储模式
const (
	// StorageModeMemory 纯内存，进程退出后数据丢失（中继默认）
	StorageModeMemory = "memory"
	// StorageModeBadger 落盘到 DataDir
	StorageModeBadger = "badger"
)

// StorageConfig 存储配置
//
// 数据目录结构：
//
//	${DataDir}/
//	└── multicore.db/       # BadgerDB（feed 条目 f/ 与身份 i/）
type StorageConfig struct {
	// Mode 存储模式：memory 或 badger
	Mode string `json:"mode"`

	// DataDir 数据目录路径（badger 模式必需）
	DataDir string `json:"data_dir"`

	// SyncWrites 每次写入同步到磁盘
	SyncWrites bool `json:"sync_writes"`

	// GCInterval 值日志回收间隔，0 禁用
	GCInterval Duration `json:"gc_interval"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Mode:       StorageModeMemory,
		DataDir:    "./data",
		GCInterval: Duration(10 * time.Minute),
	}
}

// Validate 验证存储配置的有效性
func (c StorageConfig) Validate() error {
	switch c.Mode {
	case StorageModeMemory:
	case StorageModeBadger:
		if c.DataDir == "" {
			return fmt.Errorf("storage: data_dir cannot be empty in %s mode", c.Mode)
		}
	default:
		return fmt.Errorf("storage: unknown mode %q", c.Mode)
	}
	if c.GCInterval < 0 {
		return fmt.Errorf("storage: gc_interval must not be negative")
	}
	return nil
}

// DBPath 返回 BadgerDB 数据库路径
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "multicore.db")
}
