package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 环境变量（均使用 MULTICORE_ 前缀）
const (
	EnvPrefix = "MULTICORE_"

	EnvLogLevel    = "LOG_LEVEL"
	EnvLogFormat   = "LOG_FORMAT"
	EnvStorageMode = "STORAGE_MODE"
	EnvDataDir     = "DATA_DIR"
	EnvListenAddr  = "LISTEN_ADDR"
	EnvRelayURL    = "RELAY_URL"
	EnvName        = "NAME"
	EnvEnableMDNS  = "ENABLE_MDNS"
	EnvSwarmPeers  = "SWARM_PEERS"
	EnvSettleDelay = "SETTLE_DELAY"
	EnvTraceChunks = "TRACE_CHUNKS"
	EnvEnableSwarm = "ENABLE_SWARM"
	EnvMetricsPath = "METRICS_PATH"
)

// FromJSON 从 JSON 数据创建配置，未出现的字段保持默认值
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // 用户指定的配置文件路径
	if err != nil {
		return nil, err
	}
	return FromJSON(data)
}

// ToJSON 序列化配置
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ApplyEnv 应用环境变量覆盖
//
// 环境变量优先级高于配置文件，但低于命令行参数。
func ApplyEnv(c *Config) error {
	return applyEnv(c, os.LookupEnv)
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get(EnvLogLevel); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := get(EnvLogFormat); ok {
		c.Log.Format = strings.ToLower(v)
	}
	if v, ok := get(EnvStorageMode); ok {
		c.Storage.Mode = v
	}
	if v, ok := get(EnvDataDir); ok {
		c.Storage.DataDir = v
	}
	if v, ok := get(EnvListenAddr); ok {
		c.Bridge.ListenAddr = v
	}
	if v, ok := get(EnvRelayURL); ok {
		c.Bridge.RelayURL = v
	}
	if v, ok := get(EnvName); ok {
		c.Identity.Name = v
	}
	if v, ok := get(EnvMetricsPath); ok {
		c.Diagnostics.MetricsPath = v
	}
	if v, ok := get(EnvSwarmPeers); ok {
		c.Swarm.Peers = splitAndTrim(v, ",")
	}
	if v, ok := get(EnvSettleDelay); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvSettleDelay, err)
		}
		c.Registry.SettleDelay = Duration(d)
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{EnvEnableMDNS, &c.Swarm.EnableMDNS},
		{EnvEnableSwarm, &c.Swarm.Enable},
		{EnvTraceChunks, &c.Bridge.TraceChunks},
	}
	for _, b := range bools {
		if v, ok := get(b.name); ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err)
			}
			*b.dst = parsed
		}
	}
	return nil
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
