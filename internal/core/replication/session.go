package replication

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/pkg/lib/log"
	"github.com/dep2p/go-multicore/pkg/types"
	"github.com/google/uuid"
)

var logger = log.Logger("core/replication")

const (
	// DefaultWindow 单次请求的最大条目数
	DefaultWindow = 32
	// DefaultSendQueue 发送队列长度（帧）
	DefaultSendQueue = 4096
	// maxRequestSpan 单个 Request 最多响应的条目数
	maxRequestSpan = 1024
)

// FeedSet 会话可见的 feed 集合
type FeedSet interface {
	// Feed 返回本端跟踪的 feed，不存在返回 nil
	Feed(dk types.DiscoveryKey) *feed.Feed
}

// Options 会话选项
type Options struct {
	// Encrypt 必须为 false
	Encrypt bool
	// ID 本端标识，随握手发送；为空时使用会话 uuid
	ID []byte
	// UserData 随握手发送的不透明数据
	UserData []byte
	// Window 单次请求条目数
	Window int
	// SendQueue 发送队列长度
	SendQueue int
}

// Validate 验证选项
func (o Options) Validate() error {
	if o.Encrypt {
		return ErrEncryptionUnsupported
	}
	if o.Window < 0 || o.SendQueue < 0 {
		return fmt.Errorf("replication: negative window or queue size")
	}
	return nil
}

// channel 单个发现密钥上的复制状态
type channel struct {
	feed         *feed.Feed
	localOpened  bool
	remoteOpened bool
	remoteLength uint64
	requested    uint64
	cancel       func()
}

// Session 一条连接上的复制会话
//
// 双方各自声明持有的 feed；同一发现密钥被两端都声明后通道打开，
// 随后互相通告长度并按窗口拉取缺失条目。会话打开后新增的 feed
// 通过 Offer 加入。
type Session struct {
	id    uuid.UUID
	conn  io.ReadWriteCloser
	feeds FeedSet
	opts  Options

	out       chan []byte
	done      chan struct{}
	handshake chan struct{}
	startOnce sync.Once
	closeOnce sync.Once

	mu       sync.Mutex
	channels map[types.DiscoveryKey]*channel
	remote   *Handshake
	err      error
}

// NewSession 创建会话，握手帧立即进入发送队列
func NewSession(conn io.ReadWriteCloser, feeds FeedSet, opts Options) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Window == 0 {
		opts.Window = DefaultWindow
	}
	if opts.SendQueue == 0 {
		opts.SendQueue = DefaultSendQueue
	}

	id := uuid.New()
	if len(opts.ID) == 0 {
		opts.ID = id[:]
	}

	s := &Session{
		id:        id,
		conn:      conn,
		feeds:     feeds,
		opts:      opts,
		out:       make(chan []byte, opts.SendQueue),
		done:      make(chan struct{}),
		handshake: make(chan struct{}),
		channels:  make(map[types.DiscoveryKey]*channel),
	}
	s.out <- Encode(&Handshake{ID: opts.ID, UserData: opts.UserData})
	return s, nil
}

// ID 会话 id
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Start 启动读写循环
func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.writeLoop()
		go s.readLoop()
	})
}

// Done 会话结束时关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// HandshakeDone 收到对端握手后关闭
func (s *Session) HandshakeDone() <-chan struct{} {
	return s.handshake
}

// Err 会话结束原因，正常关闭为 nil
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// RemoteID 对端握手中的 id
func (s *Session) RemoteID() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return nil
	}
	return s.remote.ID
}

// RemoteUserData 对端握手中的 userData，可能为空
func (s *Session) RemoteUserData() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return nil
	}
	return s.remote.UserData
}

// OpenChannels 两端都已声明的通道数
func (s *Session) OpenChannels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ch := range s.channels {
		if ch.localOpened && ch.remoteOpened {
			n++
		}
	}
	return n
}

// Close 关闭会话与底层连接
func (s *Session) Close() error {
	s.closeWithErr(nil)
	return nil
}

// ============================================================================
//                              Offer
// ============================================================================

// Offer 向对端声明一个 feed（重复调用无副作用）
func (s *Session) Offer(f *feed.Feed) {
	dk := f.DiscoveryKey()

	s.mu.Lock()
	if s.isDone() {
		s.mu.Unlock()
		return
	}
	ch := s.channelLocked(dk)
	if ch.localOpened {
		s.mu.Unlock()
		return
	}
	ch.localOpened = true
	ch.feed = f
	ch.cancel = f.OnAppend(func(length uint64) { s.onLocalAppend(dk, length) })
	remoteOpened := ch.remoteOpened
	s.mu.Unlock()

	msg := &Feed{DiscoveryKey: dk}
	if key, ok := f.Key(); ok {
		msg.Key = key[:]
	}
	s.send(msg)

	if remoteOpened {
		logger.Debug("复制通道已打开", "session", s.short(), "dkey", dk.Short())
		s.send(&Have{DiscoveryKey: dk, Length: f.Len()})
	}
}

func (s *Session) channelLocked(dk types.DiscoveryKey) *channel {
	ch, ok := s.channels[dk]
	if !ok {
		ch = &channel{}
		s.channels[dk] = ch
	}
	return ch
}

// ============================================================================
//                              消息处理
// ============================================================================

func (s *Session) readLoop() {
	dec := NewDecoder(s.conn)

	msg, err := dec.Next()
	if err != nil {
		s.closeWithErr(err)
		return
	}
	hs, ok := msg.(*Handshake)
	if !ok {
		s.closeWithErr(fmt.Errorf("%w: first frame is %s", ErrProtocol, msg.Type()))
		return
	}
	s.mu.Lock()
	s.remote = hs
	s.mu.Unlock()
	close(s.handshake)

	for {
		msg, err := dec.Next()
		if err != nil {
			s.closeWithErr(err)
			return
		}
		if err := s.handle(msg); err != nil {
			s.closeWithErr(err)
			return
		}
	}
}

func (s *Session) handle(msg Message) error {
	switch m := msg.(type) {
	case *Feed:
		s.handleFeed(m)
	case *Have:
		s.handleHave(m)
	case *Request:
		s.handleRequest(m)
	case *Data:
		s.handleData(m)
	case *Handshake:
		return fmt.Errorf("%w: duplicate handshake", ErrProtocol)
	}
	return nil
}

func (s *Session) handleFeed(m *Feed) {
	f := s.feeds.Feed(m.DiscoveryKey)
	if f != nil && len(m.Key) == types.KeySize {
		key, _ := types.KeyFromBytes(m.Key)
		if err := f.SetKey(key); err != nil {
			logger.Warn("对端声明的公钥与发现密钥不符", "session", s.short(), "dkey", m.DiscoveryKey.Short())
		}
	}

	s.mu.Lock()
	ch := s.channelLocked(m.DiscoveryKey)
	ch.remoteOpened = true
	localOpened := ch.localOpened
	s.mu.Unlock()

	switch {
	case f == nil:
		// 本端尚未跟踪，之后的 Offer 会补发 Have
	case !localOpened:
		s.Offer(f)
	default:
		logger.Debug("复制通道已打开", "session", s.short(), "dkey", m.DiscoveryKey.Short())
		s.send(&Have{DiscoveryKey: m.DiscoveryKey, Length: f.Len()})
		s.maybeRequest(m.DiscoveryKey)
	}
}

func (s *Session) handleHave(m *Have) {
	s.mu.Lock()
	ch, ok := s.channels[m.DiscoveryKey]
	if !ok || !ch.localOpened {
		s.mu.Unlock()
		return
	}
	if m.Length > ch.remoteLength {
		ch.remoteLength = m.Length
	}
	s.mu.Unlock()

	s.maybeRequest(m.DiscoveryKey)
}

func (s *Session) handleRequest(m *Request) {
	s.mu.Lock()
	ch, ok := s.channels[m.DiscoveryKey]
	if !ok || !ch.localOpened {
		s.mu.Unlock()
		return
	}
	f := ch.feed
	s.mu.Unlock()

	end := m.End
	if end > m.Start+maxRequestSpan {
		end = m.Start + maxRequestSpan
	}
	if n := f.Len(); end > n {
		end = n
	}
	for i := m.Start; i < end; i++ {
		e, err := f.Entry(i)
		if err != nil {
			logger.Warn("读取条目失败", "dkey", m.DiscoveryKey.Short(), "index", i, "error", err)
			return
		}
		if !s.send(&Data{
			DiscoveryKey: m.DiscoveryKey,
			Index:        e.Index,
			Value:        e.Value,
			Signature:    e.Signature,
		}) {
			return
		}
	}
}

func (s *Session) handleData(m *Data) {
	s.mu.Lock()
	ch, ok := s.channels[m.DiscoveryKey]
	if !ok || !ch.localOpened {
		s.mu.Unlock()
		return
	}
	f := ch.feed
	s.mu.Unlock()

	_, err := f.PutRemote(feed.Entry{Index: m.Index, Value: m.Value, Signature: m.Signature})
	if err == nil {
		return
	}

	logger.Warn("拒绝远端条目", "session", s.short(), "dkey", m.DiscoveryKey.Short(), "index", m.Index, "error", err)
	s.mu.Lock()
	ch.requested = 0
	s.mu.Unlock()
}

// onLocalAppend 本地 feed 变长（本地写入或从任意会话下载）
func (s *Session) onLocalAppend(dk types.DiscoveryKey, length uint64) {
	s.mu.Lock()
	ch, ok := s.channels[dk]
	if !ok || !ch.localOpened || !ch.remoteOpened {
		s.mu.Unlock()
		return
	}
	announce := length > ch.remoteLength
	s.mu.Unlock()

	if announce {
		s.send(&Have{DiscoveryKey: dk, Length: length})
	}
	s.maybeRequest(dk)
}

// maybeRequest 没有未完成请求且对端更长时请求下一个窗口
func (s *Session) maybeRequest(dk types.DiscoveryKey) {
	s.mu.Lock()
	ch, ok := s.channels[dk]
	if !ok || ch.feed == nil || !ch.localOpened || !ch.remoteOpened {
		s.mu.Unlock()
		return
	}
	f := ch.feed
	if f.Writable() {
		s.mu.Unlock()
		return
	}
	if _, hasKey := f.Key(); !hasKey {
		s.mu.Unlock()
		return
	}
	local := f.Len()
	if ch.remoteLength <= local || ch.requested > local {
		s.mu.Unlock()
		return
	}
	end := local + uint64(s.opts.Window)
	if end > ch.remoteLength {
		end = ch.remoteLength
	}
	ch.requested = end
	s.mu.Unlock()

	s.send(&Request{DiscoveryKey: dk, Start: local, End: end})
}

// ============================================================================
//                              发送与关闭
// ============================================================================

func (s *Session) send(m Message) bool {
	frame := Encode(m)
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case frame := <-s.out:
			if _, err := s.conn.Write(frame); err != nil {
				s.closeWithErr(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) closeWithErr(err error) {
	s.closeOnce.Do(func() {
		if isClosedErr(err) {
			err = nil
		}

		s.mu.Lock()
		s.err = err
		close(s.done)
		for _, ch := range s.channels {
			if ch.cancel != nil {
				ch.cancel()
			}
		}
		s.mu.Unlock()

		_ = s.conn.Close()
		if err != nil {
			logger.Info("复制会话结束", "session", s.short(), "error", err)
		} else {
			logger.Debug("复制会话结束", "session", s.short())
		}
	})
}

func (s *Session) short() string {
	return log.TruncateID(s.id.String(), 8)
}

// isClosedErr 对端关闭或本端关闭导致的错误不视为失败
func isClosedErr(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
