// Package main 提供 multicore 对端命令行入口
//
// 打开（或创建）一个文档，发布本地 actor 的可见性条目，
// 并通过局域网 swarm 和/或 websocket 中继与其他对端同步。
//
//	multicore -name alice                          # 创建文档，打印文档标识
//	multicore -name bob -doc <id> -set title=hi    # 加入文档并写入一个键
//	multicore -relay ws://relay:8080/archiver      # 经中继同步
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dep2p/go-multicore"
	"github.com/dep2p/go-multicore/internal/core/document"
	"github.com/dep2p/go-multicore/pkg/lib/log"
)

var logger = log.Logger("cmd/multicore")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 身份与存储
	// ─────────────────────────────────────────────────────────────────────
	configFile = flag.String("config", "", "配置文件路径")
	name       = flag.String("name", "", "actor 显示名称")
	dataDir    = flag.String("data-dir", "", "数据目录（默认: ./data）")
	memory     = flag.Bool("memory", false, "使用内存存储，退出后身份丢失")

	// ─────────────────────────────────────────────────────────────────────
	// 文档
	// ─────────────────────────────────────────────────────────────────────
	docKey   = flag.String("doc", "", "要打开的文档标识（64 位十六进制）")
	readOnly = flag.Bool("readonly", false, "只读打开文档")
	sets     assignments

	// ─────────────────────────────────────────────────────────────────────
	// 网络
	// ─────────────────────────────────────────────────────────────────────
	relayURL    = flag.String("relay", "", "中继地址，例如 ws://localhost:8080/archiver")
	enableSwarm = flag.Bool("swarm", true, "加入局域网 swarm")
	enableMDNS  = flag.Bool("mdns", true, "启用 mDNS 发现")
	peers       = flag.String("peers", "", "静态对端列表，逗号分隔 host:port")

	// ─────────────────────────────────────────────────────────────────────
	// 其他
	// ─────────────────────────────────────────────────────────────────────
	logLevel    = flag.String("log-level", "", "日志级别 debug/info/warn/error")
	once        = flag.Bool("once", false, "应用 -set 后立即退出")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func init() {
	flag.Var(&sets, "set", "写入文档根上的键，key=value，可重复")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Printf("multicore %s\n", multicore.Version)
		return nil
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	if err := log.Setup(cfg.Log.Level, cfg.Log.Format, nil); err != nil {
		return err
	}

	var opts []multicore.PeerOption
	key, err := parseDocKey(*docKey)
	if err != nil {
		return err
	}
	if key != nil {
		opts = append(opts, multicore.WithDocument(*key))
	}
	if *readOnly {
		opts = append(opts, multicore.WithReadOnly())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	peer, err := multicore.OpenPeer(openCtx, cfg, opts...)
	cancel()
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = peer.Close() }()

	printPeerInfo(peer, cfg.Identity.Name)

	for _, as := range sets {
		if err := peer.Set(as.key, as.value); err != nil {
			return fmt.Errorf("写入 %s 失败: %w", as.key, err)
		}
		logger.Info("已写入", "key", as.key)
	}
	if *once {
		return nil
	}

	cancelWatch := watchActors(peer)
	defer cancelWatch()

	fmt.Println("对端已启动，按 Ctrl+C 退出")
	select {
	case <-ctx.Done():
	case <-linkDone(peer):
		logger.Warn("中继连接已断开", "error", peer.Link().Err())
	}
	fmt.Println("\n正在关闭对端...")
	return nil
}

// printPeerInfo 打印对端信息
func printPeerInfo(p *multicore.Peer, name string) {
	fmt.Println("════════════════════════════════════════════════════════")
	fmt.Printf("  名称:     %s\n", name)
	fmt.Printf("  文档:     %s\n", p.ID())
	fmt.Printf("  actor:    %s\n", p.ActorID())
	fmt.Printf("  归档器:   %s\n", p.ArchiverKey())
	fmt.Println("════════════════════════════════════════════════════════")
}

// watchActors actor 可见性变化时打印
func watchActors(p *multicore.Peer) func() {
	var last string
	return p.Document().RegisterHandler(func(st document.State) {
		actors, ok := st.Map(document.ActorsKey)
		if !ok {
			return
		}
		delete(actors, document.ObjectIDKey)
		data, err := json.MarshalIndent(actors, "", "  ")
		if err != nil || string(data) == last {
			return
		}
		last = string(data)
		fmt.Printf("actors (version %d):\n%s\n", st.Version, data)
	})
}

// linkDone 中继连接结束时可读，未配置中继时永不可读
func linkDone(p *multicore.Peer) <-chan struct{} {
	if l := p.Link(); l != nil {
		return l.Done()
	}
	return nil
}
