// Package discovery 提供按发现密钥查找对端的能力
//
// 一个 Discoverer 负责两件事：在某个话题（feed 的发现密钥）下广播
// 本端的监听端口，以及找出同一话题下其他节点的可拨号地址。
//
// 实现：
//   - mdns.Discoverer  局域网多播
//   - Static           配置文件中的固定地址
//   - Memory           进程内汇合点，用于测试与单进程部署
package discovery

import (
	"context"
	"errors"

	"github.com/dep2p/go-multicore/pkg/lib/log"
	"github.com/dep2p/go-multicore/pkg/types"
)

var logger = log.Logger("core/discovery")

var (
	// ErrClosed 发现器已关闭
	ErrClosed = errors.New("discovery: closed")
)

// Peer 发现到的对端
type Peer struct {
	// ID 对端广播的标识，静态地址为空
	ID string
	// Addr 可拨号的 host:port
	Addr string
}

// Discoverer 对端发现
type Discoverer interface {
	// Advertise 在话题下广播本端，ctx 结束时撤销
	Advertise(ctx context.Context, topic types.DiscoveryKey, id string, port int) error

	// FindPeers 持续查找话题下的对端，ctx 结束时关闭返回的通道
	FindPeers(ctx context.Context, topic types.DiscoveryKey) (<-chan Peer, error)

	// Close 停止所有广播与查找
	Close() error
}

// Multi 组合多个发现器
type Multi []Discoverer

var _ Discoverer = Multi(nil)

// Advertise 在所有发现器上广播，任一失败即返回
func (m Multi) Advertise(ctx context.Context, topic types.DiscoveryKey, id string, port int) error {
	for _, d := range m {
		if err := d.Advertise(ctx, topic, id, port); err != nil {
			return err
		}
	}
	return nil
}

// FindPeers 合并所有发现器的结果
func (m Multi) FindPeers(ctx context.Context, topic types.DiscoveryKey) (<-chan Peer, error) {
	chans := make([]<-chan Peer, 0, len(m))
	for _, d := range m {
		ch, err := d.FindPeers(ctx, topic)
		if err != nil {
			logger.Warn("查找对端失败", "topic", topic.Short(), "error", err)
			continue
		}
		chans = append(chans, ch)
	}

	out := make(chan Peer, 16)
	done := make(chan struct{}, len(chans))
	for _, ch := range chans {
		go func(ch <-chan Peer) {
			defer func() { done <- struct{}{} }()
			for p := range ch {
				select {
				case out <- p:
				case <-ctx.Done():
				}
			}
		}(ch)
	}
	go func() {
		for range chans {
			<-done
		}
		close(out)
	}()
	return out, nil
}

// Close 关闭所有发现器
func (m Multi) Close() error {
	var first error
	for _, d := range m {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
