// Package mdns 提供基于 mDNS 的局域网对端发现
//
// 每个话题（发现密钥）注册为一个服务实例，TXT 记录携带
// "dk=<发现密钥>" 与 "id=<节点标识>"；查询端只接受话题匹配的条目。
package mdns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/dep2p/go-multicore/internal/core/discovery"
	"github.com/dep2p/go-multicore/pkg/lib/log"
	"github.com/dep2p/go-multicore/pkg/types"
)

var logger = log.Logger("discovery/mdns")

const (
	txtTopicPrefix = "dk="
	txtIDPrefix    = "id="
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("mdns: invalid config")

// ============================================================================
//                              配置
// ============================================================================

// Config mDNS 发现器配置
type Config struct {
	// ServiceTag 服务标签（用于区分不同的网络）
	ServiceTag string

	// Domain 域名
	Domain string

	// QueryInterval 查询间隔
	QueryInterval time.Duration

	// QueryTimeout 单次查询等待应答的时间
	QueryTimeout time.Duration

	// Interface 指定网络接口（空表示所有接口）
	Interface string

	// DisableIPv6 禁用 IPv6
	DisableIPv6 bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ServiceTag:    "_multicore._tcp",
		Domain:        "local.",
		QueryInterval: 10 * time.Second,
		QueryTimeout:  2 * time.Second,
		DisableIPv6:   true, // 默认禁用 IPv6 以避免问题
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.ServiceTag == "" {
		return fmt.Errorf("%w: empty service tag", ErrInvalidConfig)
	}
	if c.QueryInterval <= 0 || c.QueryTimeout <= 0 {
		return fmt.Errorf("%w: query interval and timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// ============================================================================
//                              mDNS 发现器
// ============================================================================

// Discoverer mDNS 发现器
type Discoverer struct {
	config Config

	mu      sync.Mutex
	servers map[string]*mdns.Server
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ discovery.Discoverer = (*Discoverer)(nil)

// New 创建 mDNS 发现器
func New(config Config) (*Discoverer, error) {
	if config.Domain == "" {
		config.Domain = "local."
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Discoverer{
		config:  config,
		servers: make(map[string]*mdns.Server),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Advertise 在话题下注册服务实例
func (d *Discoverer) Advertise(ctx context.Context, topic types.DiscoveryKey, id string, port int) error {
	if port <= 0 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, port)
	}

	ips, err := d.getLocalIPs()
	if err != nil {
		return fmt.Errorf("获取本地 IP 失败: %w", err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("未找到本地 IP 地址")
	}

	// hashicorp/mdns 会自行拼接为: <instance>.<service>.<domain>
	instance := fmt.Sprintf("mc-%s-%s", log.TruncateID(id, 8), topic.Short())
	service, err := mdns.NewMDNSService(
		instance,
		d.config.ServiceTag,
		d.config.Domain,
		"",
		port,
		ips,
		buildTXTRecords(topic, id),
	)
	if err != nil {
		return fmt.Errorf("创建 mDNS 服务失败: %w", err)
	}

	serverConfig := &mdns.Config{Zone: service}
	if d.config.Interface != "" {
		iface, err := net.InterfaceByName(d.config.Interface)
		if err != nil {
			logger.Warn("找不到指定接口", "interface", d.config.Interface, "error", err)
		} else {
			serverConfig.Iface = iface
		}
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return discovery.ErrClosed
	}
	if _, ok := d.servers[instance]; ok {
		d.mu.Unlock()
		return nil
	}
	server, err := mdns.NewServer(serverConfig)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("创建 mDNS 服务器失败: %w", err)
	}
	d.servers[instance] = server
	d.mu.Unlock()

	logger.Info("mDNS 广播已启动", "instance", instance, "topic", topic.Short(), "port", port)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case <-ctx.Done():
		case <-d.ctx.Done():
		}
		d.mu.Lock()
		if s, ok := d.servers[instance]; ok {
			_ = s.Shutdown()
			delete(d.servers, instance)
		}
		d.mu.Unlock()
	}()
	return nil
}

// FindPeers 周期性查询话题下的对端
func (d *Discoverer) FindPeers(ctx context.Context, topic types.DiscoveryKey) (<-chan discovery.Peer, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, discovery.ErrClosed
	}

	out := make(chan discovery.Peer, 16)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(out)
		d.queryLoop(ctx, topic, out)
	}()
	return out, nil
}

// Close 停止所有广播与查询
func (d *Discoverer) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()

	// hashicorp/mdns Query 在超时前不会返回，等待有上限
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.config.QueryTimeout + time.Second):
		logger.Debug("mDNS 关闭超时，查询将在后台结束")
	}
	logger.Info("mDNS 发现器已停止")
	return nil
}

// ============================================================================
//                              查询循环
// ============================================================================

func (d *Discoverer) queryLoop(ctx context.Context, topic types.DiscoveryKey, out chan<- discovery.Peer) {
	seen := make(map[string]struct{})

	ticker := time.NewTicker(d.config.QueryInterval)
	defer ticker.Stop()

	for {
		for _, p := range d.runQuery(topic) {
			key := p.ID + "@" + p.Addr
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			case <-d.ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runQuery 执行一次查询并返回话题匹配的对端
func (d *Discoverer) runQuery(topic types.DiscoveryKey) []discovery.Peer {
	entries := make(chan *mdns.ServiceEntry, 16)
	params := &mdns.QueryParam{
		Service:             d.config.ServiceTag,
		Domain:              d.config.Domain,
		Timeout:             d.config.QueryTimeout,
		Entries:             entries,
		DisableIPv6:         d.config.DisableIPv6,
		WantUnicastResponse: true,
	}
	if d.config.Interface != "" {
		if iface, err := net.InterfaceByName(d.config.Interface); err == nil {
			params.Interface = iface
		}
	}

	var peers []discovery.Peer
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for entry := range entries {
			if p, ok := parseEntry(entry, topic); ok {
				peers = append(peers, p)
			}
		}
	}()

	if err := mdns.Query(params); err != nil {
		logger.Debug("mDNS 查询失败", "error", err)
	}
	close(entries)
	<-collected
	return peers
}

// parseEntry 解析服务条目，话题不匹配或没有可用地址时返回 false
func parseEntry(entry *mdns.ServiceEntry, topic types.DiscoveryKey) (discovery.Peer, bool) {
	if entry == nil {
		return discovery.Peer{}, false
	}

	var p discovery.Peer
	matched := false
	for _, txt := range entry.InfoFields {
		switch {
		case strings.HasPrefix(txt, txtTopicPrefix):
			dk, err := types.ParseDiscoveryKey(strings.TrimPrefix(txt, txtTopicPrefix))
			matched = err == nil && dk == topic
		case strings.HasPrefix(txt, txtIDPrefix):
			p.ID = strings.TrimPrefix(txt, txtIDPrefix)
		}
	}
	if !matched || entry.Port <= 0 {
		return discovery.Peer{}, false
	}

	// 只使用局域网地址，避免 VPN/隧道地址
	switch {
	case entry.AddrV4 != nil && isLANIP(entry.AddrV4):
		p.Addr = net.JoinHostPort(entry.AddrV4.String(), strconv.Itoa(entry.Port))
	case entry.AddrV6 != nil && isLANIP(entry.AddrV6):
		p.Addr = net.JoinHostPort(entry.AddrV6.String(), strconv.Itoa(entry.Port))
	default:
		logger.Debug("跳过没有局域网地址的条目", "name", entry.Name)
		return discovery.Peer{}, false
	}
	return p, true
}

// buildTXTRecords 构建 TXT 记录，每条不超过 255 字节
func buildTXTRecords(topic types.DiscoveryKey, id string) []string {
	if len(id) > 255-len(txtIDPrefix) {
		id = id[:255-len(txtIDPrefix)]
	}
	return []string{txtTopicPrefix + topic.String(), txtIDPrefix + id}
}

// ============================================================================
//                              网卡和地址过滤
// ============================================================================

// getLocalIPs 获取本地局域网 IP，按优先级排序（192.168.x > 10.x > 172.16-31.x）
func (d *Discoverer) getLocalIPs() ([]net.IP, error) {
	type scoredIP struct {
		ip    net.IP
		score int
	}
	var scored []scoredIP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if d.config.Interface != "" && iface.Name != d.config.Interface {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP
			if ip.To4() == nil && d.config.DisableIPv6 {
				continue
			}
			if score := scoreLANIP(ip); score > 0 {
				scored = append(scored, scoredIP{ip: ip, score: score})
			}
		}
	}

	for i := 0; i < len(scored)-1; i++ {
		for j := i + 1; j < len(scored); j++ {
			if scored[j].score > scored[i].score {
				scored[i], scored[j] = scored[j], scored[i]
			}
		}
	}

	ips := make([]net.IP, len(scored))
	for i, s := range scored {
		ips[i] = s.ip
	}
	return ips, nil
}

// isLANIP 判断是否为局域网可达 IP（RFC1918/ULA/link-local）
//
// 已知的 VPN/隧道地址段即使属于私网也被排除。
func isLANIP(ip net.IP) bool {
	if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
		return false
	}
	if isNonRoutableIP(ip) {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// virtualInterfacePrefixes 虚拟网卡前缀，其地址跨机通常不可达
var virtualInterfacePrefixes = []string{
	"utun", "ipsec", "awdl", "llw", "bridge",
	"docker", "br-", "veth", "virbr", "vboxnet", "vmnet",
	"tun", "tap", "dummy",
	"tailscale", "wg",
}

func isVirtualInterface(name string) bool {
	nameLower := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(nameLower, prefix) {
			return true
		}
	}
	return false
}

// nonRoutableCIDRs VPN、CGNAT、测试网段
var nonRoutableCIDRs = []string{
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"100.64.0.0/10",
}

var parsedNonRoutableCIDRs []*net.IPNet

func init() {
	for _, cidr := range nonRoutableCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err == nil {
			parsedNonRoutableCIDRs = append(parsedNonRoutableCIDRs, ipNet)
		}
	}
}

func isNonRoutableIP(ip net.IP) bool {
	for _, ipNet := range parsedNonRoutableCIDRs {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// scoreLANIP 局域网 IP 评分，0 表示不是有效的局域网 IP
func scoreLANIP(ip net.IP) int {
	if !isLANIP(ip) {
		return 0
	}

	// IPv4 优先于 IPv6
	base := 100
	ip4 := ip.To4()
	if ip4 != nil {
		base = 1000
	}

	switch {
	case ip4 != nil && ip4[0] == 192 && ip4[1] == 168:
		return base + 300
	case ip4 != nil && ip4[0] == 10:
		return base + 200
	case ip4 != nil && ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
		return base + 100
	case ip.IsPrivate():
		return base + 50
	default:
		// 链路本地
		return base + 10
	}
}
