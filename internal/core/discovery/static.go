package discovery

import (
	"context"
	"sync/atomic"

	"github.com/dep2p/go-multicore/pkg/types"
)

// Static 固定地址列表
//
// 不区分话题：每次 FindPeers 都返回全部地址。
type Static struct {
	addrs  []string
	closed atomic.Bool
}

var _ Discoverer = (*Static)(nil)

// NewStatic 创建静态发现器
func NewStatic(addrs []string) *Static {
	return &Static{addrs: append([]string(nil), addrs...)}
}

// Advertise 无操作
func (s *Static) Advertise(context.Context, types.DiscoveryKey, string, int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// FindPeers 返回配置的地址后关闭通道
func (s *Static) FindPeers(ctx context.Context, _ types.DiscoveryKey) (<-chan Peer, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	out := make(chan Peer, len(s.addrs))
	for _, a := range s.addrs {
		select {
		case out <- Peer{Addr: a}:
		case <-ctx.Done():
		}
	}
	close(out)
	return out, nil
}

// Close 关闭
func (s *Static) Close() error {
	s.closed.Store(true)
	return nil
}
