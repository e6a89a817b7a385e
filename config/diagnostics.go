package config

import (
	"errors"
	"strings"
)

// DiagnosticsConfig 诊断配置
type DiagnosticsConfig struct {
	// EnableMetrics 在中继 HTTP 服务上暴露 prometheus 指标
	EnableMetrics bool `json:"enable_metrics"`

	// MetricsPath 指标路径
	MetricsPath string `json:"metrics_path"`
}

// DefaultDiagnosticsConfig 返回默认诊断配置
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		EnableMetrics: true,
		MetricsPath:   "/metrics",
	}
}

// Validate 验证配置
func (c DiagnosticsConfig) Validate() error {
	if c.EnableMetrics && !strings.HasPrefix(c.MetricsPath, "/") {
		return errors.New("diagnostics: metrics_path must start with '/'")
	}
	return nil
}
