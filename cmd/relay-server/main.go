// Package main 提供独立的 websocket 中继服务器
//
// 浏览器端通过 ws://host:port/archiver/{archiverKey} 连接，
// 中继为每个归档器公钥维护一个会话，把复制流桥接到服务端，
// 并可选地加入 swarm 与局域网内的对端直连。
//
// 使用方法:
//
//	go run ./cmd/relay-server -listen :8080
//
// 配置优先级：命令行参数 > 环境变量（MULTICORE_ 前缀）> 配置文件 > 默认值。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dep2p/go-multicore"
	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/pkg/lib/log"
)

var logger = log.Logger("cmd/relay-server")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "JSON 配置文件路径")
	listen := flag.String("listen", "", "HTTP 监听地址（默认 :8080）")
	logLevel := flag.String("log-level", "", "日志级别 debug/info/warn/error")
	logFormat := flag.String("log-format", "", "日志格式 text/json")
	storageMode := flag.String("storage", "", "存储模式 memory/badger")
	dataDir := flag.String("data-dir", "", "badger 数据目录")
	trace := flag.Bool("trace", false, "以 debug 级别记录每个数据块")
	noSwarm := flag.Bool("no-swarm", false, "会话不加入 swarm")
	peers := flag.String("peers", "", "静态对端列表，逗号分隔 host:port")
	printConfig := flag.Bool("print-config", false, "打印最终配置后退出")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}

	// 命令行参数覆盖
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Bridge.ListenAddr = *listen
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		case "storage":
			cfg.Storage.Mode = *storageMode
		case "data-dir":
			cfg.Storage.DataDir = *dataDir
		case "trace":
			cfg.Bridge.TraceChunks = *trace
		case "no-swarm":
			cfg.Swarm.Enable = !*noSwarm
		case "peers":
			cfg.Swarm.Peers = splitPeers(*peers)
		}
	})

	if *printConfig {
		data, err := cfg.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if err := log.Setup(cfg.Log.Level, cfg.Log.Format, nil); err != nil {
		return err
	}

	relay, err := multicore.NewRelay(cfg)
	if err != nil {
		return fmt.Errorf("创建中继失败: %w", err)
	}
	if err := relay.Start(context.Background()); err != nil {
		return err
	}

	fmt.Printf("multicore relay %s\n", multicore.Version)
	fmt.Printf("  中继地址: %s/{archiverKey}\n", relay.URL())
	if cfg.Diagnostics.EnableMetrics {
		fmt.Printf("  指标:     http://%s%s\n", relay.Addr(), cfg.Diagnostics.MetricsPath)
	}
	fmt.Println("按 Ctrl+C 停止服务器")

	sig := <-relay.Done()
	logger.Info("收到信号，正在关闭", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return relay.Stop(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.NewConfig()
	if path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitPeers(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
