package swarm

import (
	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/discovery"
	"github.com/dep2p/go-multicore/internal/core/discovery/mdns"
)

// DiscovererFromUnified 按统一配置组合发现器
//
// 启用 mDNS 时加入 mDNS 发现器，配置了静态对端时加入静态发现器。
// 两者都没有时返回 nil，swarm 只接受入站连接。
func DiscovererFromUnified(cfg *config.Config) (discovery.Discoverer, error) {
	if cfg == nil || !cfg.Swarm.Enable {
		return nil, nil
	}

	var multi discovery.Multi
	if cfg.Swarm.EnableMDNS {
		mc := mdns.DefaultConfig()
		mc.ServiceTag = cfg.Swarm.ServiceTag
		mc.QueryInterval = cfg.Swarm.QueryInterval.Duration()
		d, err := mdns.New(mc)
		if err != nil {
			return nil, err
		}
		multi = append(multi, d)
	}
	if len(cfg.Swarm.Peers) > 0 {
		multi = append(multi, discovery.NewStatic(cfg.Swarm.Peers))
	}

	switch len(multi) {
	case 0:
		return nil, nil
	case 1:
		return multi[0], nil
	}
	return multi, nil
}
