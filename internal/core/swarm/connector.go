package swarm

import (
	"sync/atomic"

	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/pkg/types"
)

// Registrar 接收新发现的 feed
type Registrar interface {
	Add(key types.Key) (*feed.Feed, error)
}

// Announcer 接收新发现的 actor
type Announcer interface {
	AnnounceActor(name string, key types.Key)
}

// Connector 把 swarm 连接事件转换为 feed 注册与 actor 宣告
//
// 对端数据缺失或格式错误只记录日志，不影响归档器与注册表。
type Connector struct {
	registrar Registrar
	announcer Announcer

	accepted atomic.Int64
	dropped  atomic.Int64
}

// NewConnector 创建连接器
func NewConnector(registrar Registrar, announcer Announcer) *Connector {
	return &Connector{registrar: registrar, announcer: announcer}
}

// HandleConnection 处理一条完成握手的连接
func (c *Connector) HandleConnection(p *Peer) {
	defer func() {
		if r := recover(); r != nil {
			c.dropped.Add(1)
			logger.Error("处理对端连接时 panic", "remote", p.RemoteAddr, "recover", r)
		}
	}()

	name, key, err := ParseUserData(p.UserData)
	if err != nil {
		c.dropped.Add(1)
		logger.Debug("丢弃无效的对端数据", "remote", p.RemoteAddr, "error", err)
		return
	}

	if _, err := c.registrar.Add(key); err != nil {
		c.dropped.Add(1)
		logger.Warn("注册对端 feed 失败", "remote", p.RemoteAddr, "key", key.Short(), "error", err)
		return
	}
	c.accepted.Add(1)
	logger.Info("对端 feed 已注册", "name", name, "key", key.Short(), "remote", p.RemoteAddr)

	if c.announcer != nil {
		c.announcer.AnnounceActor(name, key)
	}
}

// Accepted 已注册的连接数
func (c *Connector) Accepted() int64 {
	return c.accepted.Load()
}

// Dropped 被丢弃的连接数
func (c *Connector) Dropped() int64 {
	return c.dropped.Load()
}
