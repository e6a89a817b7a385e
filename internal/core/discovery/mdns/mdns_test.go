package mdns

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-multicore/internal/core/discovery"
	"github.com/dep2p/go-multicore/pkg/types"
)

// ============================================================================
//                              Config 测试
// ============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "_multicore._tcp", cfg.ServiceTag)
	assert.Equal(t, "local.", cfg.Domain)
	assert.Greater(t, cfg.QueryInterval, time.Duration(0))
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceTag = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.QueryTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ============================================================================
//                              TXT 与条目解析
// ============================================================================

func TestBuildTXTRecords(t *testing.T) {
	topic := types.DiscoveryKey{0xaa}
	txt := buildTXTRecords(topic, "peer-1")

	require.Len(t, txt, 2)
	assert.Equal(t, "dk="+topic.String(), txt[0])
	assert.Equal(t, "id=peer-1", txt[1])

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	for _, r := range buildTXTRecords(topic, string(long)) {
		assert.LessOrEqual(t, len(r), 255)
	}
}

func TestParseEntry(t *testing.T) {
	topic := types.DiscoveryKey{1}
	other := types.DiscoveryKey{2}

	entry := &mdns.ServiceEntry{
		Name:       "mc-peer.local.",
		AddrV4:     net.ParseIP("192.168.1.20").To4(),
		Port:       4001,
		InfoFields: buildTXTRecords(topic, "peer-1"),
	}

	t.Run("话题匹配", func(t *testing.T) {
		p, ok := parseEntry(entry, topic)
		require.True(t, ok)
		assert.Equal(t, discovery.Peer{ID: "peer-1", Addr: "192.168.1.20:4001"}, p)
	})

	t.Run("话题不匹配", func(t *testing.T) {
		_, ok := parseEntry(entry, other)
		assert.False(t, ok)
	})

	t.Run("非局域网地址", func(t *testing.T) {
		e := *entry
		e.AddrV4 = net.ParseIP("100.64.1.1").To4()
		_, ok := parseEntry(&e, topic)
		assert.False(t, ok)
	})

	t.Run("缺少话题", func(t *testing.T) {
		e := *entry
		e.InfoFields = []string{"id=peer-1"}
		_, ok := parseEntry(&e, topic)
		assert.False(t, ok)
	})

	t.Run("nil", func(t *testing.T) {
		_, ok := parseEntry(nil, topic)
		assert.False(t, ok)
	})
}

// ============================================================================
//                              地址过滤
// ============================================================================

func TestIsLANIP(t *testing.T) {
	cases := map[string]bool{
		"192.168.1.1": true,
		"10.0.0.5":    true,
		"172.20.1.1":  true,
		"169.254.1.1": true,
		"8.8.8.8":     false,
		"127.0.0.1":   false,
		"0.0.0.0":     false,
		"100.64.0.1":  false,
		"198.18.0.1":  false,
		"fd00::1":     true,
	}
	for ip, want := range cases {
		assert.Equal(t, want, isLANIP(net.ParseIP(ip)), ip)
	}
	assert.False(t, isLANIP(nil))
}

func TestScoreLANIP_Order(t *testing.T) {
	s192 := scoreLANIP(net.ParseIP("192.168.0.2"))
	s10 := scoreLANIP(net.ParseIP("10.1.1.1"))
	s172 := scoreLANIP(net.ParseIP("172.16.0.1"))
	sLink := scoreLANIP(net.ParseIP("169.254.0.1"))
	sV6 := scoreLANIP(net.ParseIP("fd00::1"))

	assert.Greater(t, s192, s10)
	assert.Greater(t, s10, s172)
	assert.Greater(t, s172, sLink)
	assert.Greater(t, sLink, sV6)
	assert.Zero(t, scoreLANIP(net.ParseIP("8.8.8.8")))
}

func TestIsVirtualInterface(t *testing.T) {
	assert.True(t, isVirtualInterface("docker0"))
	assert.True(t, isVirtualInterface("utun3"))
	assert.True(t, isVirtualInterface("WG0"))
	assert.False(t, isVirtualInterface("eth0"))
	assert.False(t, isVirtualInterface("en0"))
}

// ============================================================================
//                              生命周期
// ============================================================================

func TestDiscoverer_CloseIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueryTimeout = 100 * time.Millisecond
	d, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err = d.FindPeers(context.Background(), types.DiscoveryKey{1})
	assert.ErrorIs(t, err, discovery.ErrClosed)
}

func TestDiscoverer_AdvertiseRejectsZeroPort(t *testing.T) {
	d, err := New(DefaultConfig())
	require.NoError(t, err)
	defer d.Close()

	err = d.Advertise(context.Background(), types.DiscoveryKey{1}, "peer", 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
