package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/pkg/types"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// buildConfig 构建最终配置
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（MULTICORE_* 前缀）
//  3. 配置文件
//  4. 默认值
func buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	// 对端默认落盘，身份跨进程保持
	cfg.Storage.Mode = config.StorageModeBadger

	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if isFlagSet("name") {
		cfg.Identity.Name = *name
	}
	if isFlagSet("data-dir") {
		cfg.Storage.DataDir = *dataDir
	}
	if isFlagSet("memory") && *memory {
		cfg.Storage.Mode = config.StorageModeMemory
	}
	if isFlagSet("relay") {
		cfg.Bridge.RelayURL = *relayURL
	}
	if isFlagSet("swarm") {
		cfg.Swarm.Enable = *enableSwarm
	}
	if isFlagSet("mdns") {
		cfg.Swarm.EnableMDNS = *enableMDNS
	}
	if isFlagSet("peers") {
		cfg.Swarm.Peers = splitAndTrim(*peers, ",")
	}
	if isFlagSet("log-level") {
		cfg.Log.Level = *logLevel
	}

	return cfg, cfg.Validate()
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// ============================================================================
//                              -set 参数
// ============================================================================

// assignment 一次 -set key=value
type assignment struct {
	key   string
	value any
}

// assignments 可重复的 -set 参数
type assignments []assignment

func (a *assignments) String() string {
	parts := make([]string, 0, len(*a))
	for _, as := range *a {
		parts = append(parts, fmt.Sprintf("%s=%v", as.key, as.value))
	}
	return strings.Join(parts, ",")
}

// Set 解析 key=value，value 是合法 JSON 时按 JSON 解码，否则作为字符串
func (a *assignments) Set(s string) error {
	as, err := parseAssignment(s)
	if err != nil {
		return err
	}
	*a = append(*a, as)
	return nil
}

func parseAssignment(s string) (assignment, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return assignment{}, fmt.Errorf("expected key=value, got %q", s)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	return assignment{key: key, value: value}, nil
}

// parseDocKey 解析 -doc 参数
func parseDocKey(s string) (*types.Key, error) {
	if s == "" {
		return nil, nil
	}
	key, err := types.ParseKey(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid -doc: %w", err)
	}
	return &key, nil
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
