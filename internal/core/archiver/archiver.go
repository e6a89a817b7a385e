package archiver

import (
	"encoding/json"
	"io"
	"net"
	"sort"
	"sync"

	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/internal/core/replication"
	pkgif "github.com/dep2p/go-multicore/pkg/interfaces"
	"github.com/dep2p/go-multicore/pkg/lib/log"
	"github.com/dep2p/go-multicore/pkg/types"
)

var logger = log.Logger("core/archiver")

const recordTypeAdd = "add"

// record changes feed 中的一条记录
type record struct {
	Type         string `json:"type"`
	Key          string `json:"key,omitempty"`
	DiscoveryKey string `json:"discoveryKey,omitempty"`
}

// Options 归档器选项
type Options struct {
	// ChangesKey 以只读方式打开已有归档器
	ChangesKey *types.Key

	// ChangesKeyPair 以可写方式打开归档器
	//
	// 两者都为空时生成新的密钥对。
	ChangesKeyPair *feed.KeyPair

	// Storage 为每个 feed 提供存储，默认内存
	Storage feed.StorageFactory

	// Bus 可选，用于发布 EvtFeedAdded
	Bus pkgif.EventBus

	// Replication 会话默认选项（窗口、发送队列）
	Replication replication.Options
}

// Archiver feed 集合
type Archiver struct {
	changes *feed.Feed
	storage feed.StorageFactory
	emitter pkgif.Emitter
	repl    replication.Options

	mu       sync.Mutex
	feeds    map[types.DiscoveryKey]*feed.Feed
	sessions map[*replication.Session]struct{}
	closed   bool

	replayMu sync.Mutex
	replayed uint64

	ready         chan struct{}
	cancelChanges func()
}

// New 打开归档器并重放 changes feed
func New(opts Options) (*Archiver, error) {
	if opts.Replication.Encrypt {
		return nil, replication.ErrEncryptionUnsupported
	}
	if opts.ChangesKey != nil && opts.ChangesKeyPair != nil && *opts.ChangesKey != opts.ChangesKeyPair.Public {
		return nil, ErrConflictingOptions
	}
	if opts.Storage == nil {
		opts.Storage = feed.MemoryStorageFactory()
	}

	kp := opts.ChangesKeyPair
	if kp == nil && opts.ChangesKey == nil {
		var err error
		if kp, err = feed.GenerateKeyPair(); err != nil {
			return nil, err
		}
	}

	var key types.Key
	if kp != nil {
		key = kp.Public
	} else {
		key = *opts.ChangesKey
	}

	st, err := opts.Storage(feed.DiscoveryKey(key))
	if err != nil {
		return nil, err
	}
	var changes *feed.Feed
	if kp != nil {
		changes, err = feed.Create(kp, st)
	} else {
		changes, err = feed.Open(key, st)
	}
	if err != nil {
		return nil, err
	}

	a := &Archiver{
		changes:  changes,
		storage:  opts.Storage,
		repl:     opts.Replication,
		feeds:    make(map[types.DiscoveryKey]*feed.Feed),
		sessions: make(map[*replication.Session]struct{}),
		ready:    make(chan struct{}),
	}
	if opts.Bus != nil {
		if a.emitter, err = opts.Bus.Emitter(new(types.EvtFeedAdded)); err != nil {
			return nil, err
		}
	}

	a.cancelChanges = changes.OnAppend(func(uint64) { a.replay() })
	a.replay()
	close(a.ready)

	logger.Info("归档器已打开",
		"key", key.Short(),
		"writable", changes.Writable(),
		"feeds", a.Len())
	return a, nil
}

// Ready 初始状态可用后关闭
func (a *Archiver) Ready() <-chan struct{} {
	return a.ready
}

// Key changes feed 的公钥，也是归档器的标识
func (a *Archiver) Key() types.Key {
	key, _ := a.changes.Key()
	return key
}

// DiscoveryKey changes feed 的发现密钥
func (a *Archiver) DiscoveryKey() types.DiscoveryKey {
	return a.changes.DiscoveryKey()
}

// Changes 返回 changes feed
func (a *Archiver) Changes() *feed.Feed {
	return a.changes
}

// Writable 本端是否持有 changes feed 私钥
func (a *Archiver) Writable() bool {
	return a.changes.Writable()
}

// ============================================================================
//                              feed 管理
// ============================================================================

// Feed 按发现密钥查找 feed（包括 changes feed），不存在返回 nil
func (a *Archiver) Feed(dk types.DiscoveryKey) *feed.Feed {
	if dk == a.changes.DiscoveryKey() {
		return a.changes
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.feeds[dk]
}

// Feeds 返回跟踪的 feed（不含 changes feed），按发现密钥排序
func (a *Archiver) Feeds() []*feed.Feed {
	a.mu.Lock()
	out := make([]*feed.Feed, 0, len(a.feeds))
	for _, f := range a.feeds {
		out = append(out, f)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].DiscoveryKey(), out[j].DiscoveryKey()
		return string(di[:]) < string(dj[:])
	})
	return out
}

// Len 跟踪的 feed 数（不含 changes feed）
func (a *Archiver) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.feeds)
}

// Add 以公钥跟踪 feed，返回规范的 feed 实例
func (a *Archiver) Add(key types.Key) (*feed.Feed, error) {
	return a.add(feed.DiscoveryKey(key), &key, nil, true)
}

// AddDiscoveryKey 只以发现密钥跟踪 feed
//
// 公钥在之后的复制中由对端补齐。
func (a *Archiver) AddDiscoveryKey(dk types.DiscoveryKey) (*feed.Feed, error) {
	return a.add(dk, nil, nil, true)
}

// AddFeed 跟踪已打开的 feed
//
// 同一发现密钥已被跟踪时返回已有实例，f 被忽略。
func (a *Archiver) AddFeed(f *feed.Feed) (*feed.Feed, error) {
	var keyPtr *types.Key
	if key, ok := f.Key(); ok {
		keyPtr = &key
	}
	return a.add(f.DiscoveryKey(), keyPtr, f, true)
}

func (a *Archiver) add(dk types.DiscoveryKey, key *types.Key, f *feed.Feed, persist bool) (*feed.Feed, error) {
	if dk == a.changes.DiscoveryKey() {
		return a.changes, nil
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	if existing, ok := a.feeds[dk]; ok {
		a.mu.Unlock()
		if key != nil {
			if err := existing.SetKey(*key); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	if f == nil {
		st, err := a.storage(dk)
		if err != nil {
			a.mu.Unlock()
			return nil, err
		}
		if key != nil {
			f, err = feed.Open(*key, st)
		} else {
			f, err = feed.OpenDiscoveryKey(dk, st)
		}
		if err != nil {
			a.mu.Unlock()
			return nil, err
		}
	}
	a.feeds[dk] = f
	sessions := make([]*replication.Session, 0, len(a.sessions))
	for s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	if persist && a.changes.Writable() {
		if err := a.appendRecord(dk, key); err != nil {
			logger.Warn("记录 feed 失败", "dkey", dk.Short(), "error", err)
		}
	}

	logger.Info("feed 已加入", "archiver", a.Key().Short(), "dkey", dk.Short(), "sessions", len(sessions))
	a.emitAdded(dk, key)

	for _, s := range sessions {
		s.Offer(f)
	}
	return f, nil
}

func (a *Archiver) appendRecord(dk types.DiscoveryKey, key *types.Key) error {
	rec := record{Type: recordTypeAdd}
	if key != nil {
		rec.Key = key.String()
	} else {
		rec.DiscoveryKey = dk.String()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = a.changes.Append(data)
	return err
}

func (a *Archiver) emitAdded(dk types.DiscoveryKey, key *types.Key) {
	if a.emitter == nil {
		return
	}
	evt := types.EvtFeedAdded{
		BaseEvent:    types.NewBaseEvent(types.EventTypeFeedAdded),
		Archiver:     a.Key(),
		DiscoveryKey: dk,
	}
	if key != nil {
		evt.Key = *key
		evt.HasKey = true
	}
	if err := a.emitter.Emit(evt); err != nil {
		logger.Debug("发布 feed 事件失败", "error", err)
	}
}

// replay 跟踪 changes feed 中尚未处理的记录
func (a *Archiver) replay() {
	a.replayMu.Lock()
	defer a.replayMu.Unlock()

	for a.replayed < a.changes.Len() {
		index := a.replayed
		a.replayed++

		data, err := a.changes.Get(index)
		if err != nil {
			logger.Warn("读取 changes 记录失败", "index", index, "error", err)
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil || rec.Type != recordTypeAdd {
			logger.Debug("跳过无法识别的 changes 记录", "index", index)
			continue
		}

		switch {
		case rec.Key != "":
			key, err := types.ParseKey(rec.Key)
			if err != nil {
				logger.Debug("changes 记录公钥无效", "index", index, "error", err)
				continue
			}
			_, err = a.add(feed.DiscoveryKey(key), &key, nil, false)
			if err != nil {
				logger.Warn("重放 changes 记录失败", "index", index, "error", err)
			}
		case rec.DiscoveryKey != "":
			dk, err := types.ParseDiscoveryKey(rec.DiscoveryKey)
			if err != nil {
				logger.Debug("changes 记录发现密钥无效", "index", index, "error", err)
				continue
			}
			if _, err := a.add(dk, nil, nil, false); err != nil {
				logger.Warn("重放 changes 记录失败", "index", index, "error", err)
			}
		}
	}
}

// ============================================================================
//                              复制
// ============================================================================

// ReplicateTo 在连接上启动复制会话
//
// 会话声明 changes feed 与当前所有 feed；之后加入的 feed 自动补发。
func (a *Archiver) ReplicateTo(conn io.ReadWriteCloser, opts replication.Options) (*replication.Session, error) {
	if opts.Window == 0 {
		opts.Window = a.repl.Window
	}
	if opts.SendQueue == 0 {
		opts.SendQueue = a.repl.SendQueue
	}

	s, err := replication.NewSession(conn, a, opts)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = s.Close()
		return nil, ErrClosed
	}
	a.sessions[s] = struct{}{}
	feeds := make([]*feed.Feed, 0, len(a.feeds)+1)
	feeds = append(feeds, a.changes)
	for _, f := range a.feeds {
		feeds = append(feeds, f)
	}
	a.mu.Unlock()

	s.Start()
	for _, f := range feeds {
		s.Offer(f)
	}

	go func() {
		<-s.Done()
		a.mu.Lock()
		delete(a.sessions, s)
		a.mu.Unlock()
		logger.Debug("归档器会话结束", "archiver", a.Key().Short(), "session", s.ID(), "error", s.Err())
	}()

	logger.Debug("归档器会话开始", "archiver", a.Key().Short(), "session", s.ID(), "feeds", len(feeds))
	return s, nil
}

// Replicate 返回一端复制流
//
// 返回的连接承载完整的复制协议字节；调用方负责把它与传输连接对接。
func (a *Archiver) Replicate(opts replication.Options) (io.ReadWriteCloser, error) {
	local, remote := net.Pipe()
	if _, err := a.ReplicateTo(local, opts); err != nil {
		_ = local.Close()
		_ = remote.Close()
		return nil, err
	}
	return remote, nil
}

// Sessions 当前打开的会话数
func (a *Archiver) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Close 关闭所有会话
func (a *Archiver) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	sessions := make([]*replication.Session, 0, len(a.sessions))
	for s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	a.cancelChanges()
	for _, s := range sessions {
		_ = s.Close()
	}
	if a.emitter != nil {
		_ = a.emitter.Close()
	}
	return nil
}
