package document

import (
	"sort"
	"sync"

	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/pkg/lib/log"
	"github.com/dep2p/go-multicore/pkg/types"
)

var logger = log.Logger("core/document")

// Host 打开与创建 feed
type Host interface {
	CreateFeed(kp *feed.KeyPair) (*feed.Feed, error)
	OpenFeed(key types.Key) (*feed.Feed, error)
}

// Handler 文档更新回调
type Handler func(State)

// State 文档某个版本的合并结果（深拷贝）
type State struct {
	Version uint64
	Root    map[string]any
}

// Map 返回 path 处的 map
func (s State) Map(path ...string) (map[string]any, bool) {
	m, ok := walk(s.Root, path, false)
	return m, ok
}

// tracked 文档读取的一个 actor feed
type tracked struct {
	key    types.Key
	feed   *feed.Feed
	read   uint64
	cancel func()
}

// ============================================================================
//                              Document
// ============================================================================

// Document 由多个 actor feed 合并而成的文档
//
// 每个 actor 只写自己的 feed，每个条目是一个 Change。变更在其依赖全部
// 应用后按 (Clock, Actor, Seq) 顺序合并。更新回调在单独的 goroutine 上
// 串行执行，回调内调用 Change 是安全的，期间的多次更新会合并为一次通知。
type Document struct {
	host   Host
	source *feed.Feed
	local  *feed.Feed
	id     types.Key
	actor  string

	changeMu sync.Mutex

	mu       sync.Mutex
	feeds    map[types.Key]*tracked
	seqs     map[string]uint64
	clock    uint64
	applied  []Change
	pending  map[string]map[uint64]Change
	state    map[string]any
	version  uint64
	resolved bool
	waiters  []func()
	handlers map[uint64]Handler
	nextID   uint64
	queue    []func()
	dirty    bool
	closed   bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// Create 创建新文档，kp 的 feed 同时作为源 feed 与本地 feed
func Create(host Host, kp *feed.KeyPair) (*Document, error) {
	local, err := host.CreateFeed(kp)
	if err != nil {
		return nil, err
	}
	d := newDocument(host, local, local)
	if local.Len() == 0 {
		if err := d.commit("create", nil); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	logger.Info("创建文档", "id", d.id.Short())
	return d, nil
}

// Open 打开以 sourceKey 标识的文档
//
// readOnly 为 false 时以 kp 创建本地可写 feed（kp 为空时生成新密钥）；
// kp 与源 feed 相同时本地 feed 即源 feed。
func Open(host Host, sourceKey types.Key, kp *feed.KeyPair, readOnly bool) (*Document, error) {
	source, err := host.OpenFeed(sourceKey)
	if err != nil {
		return nil, err
	}

	var local *feed.Feed
	if !readOnly {
		if kp == nil {
			if kp, err = feed.GenerateKeyPair(); err != nil {
				return nil, err
			}
		}
		if local, err = host.CreateFeed(kp); err != nil {
			return nil, err
		}
	}

	d := newDocument(host, source, local)
	logger.Info("打开文档", "id", d.id.Short(), "actor", log.TruncateID(d.actor, 8), "readOnly", readOnly)
	return d, nil
}

func newDocument(host Host, source, local *feed.Feed) *Document {
	id, _ := source.Key()
	actor := id
	if local != nil {
		actor, _ = local.Key()
	}

	d := &Document{
		host:     host,
		source:   source,
		local:    local,
		id:       id,
		actor:    actor.String(),
		feeds:    make(map[types.Key]*tracked),
		seqs:     make(map[string]uint64),
		pending:  make(map[string]map[uint64]Change),
		state:    make(map[string]any),
		handlers: make(map[uint64]Handler),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()

	d.attach(id, source)
	if local != nil {
		d.attach(actor, local)
	}
	return d
}

// ID 文档标识（源 feed 公钥）
func (d *Document) ID() types.Key {
	return d.id
}

// ActorID 本地 actor 标识：本地 feed 公钥，只读时为源 feed 公钥
func (d *Document) ActorID() string {
	return d.actor
}

// LocalFeed 本地可写 feed，只读时为 nil
func (d *Document) LocalFeed() *feed.Feed {
	return d.local
}

// LocalLength 本地 feed 长度，只读时 ok 为 false
func (d *Document) LocalLength() (length uint64, ok bool) {
	if d.local == nil {
		return 0, false
	}
	return d.local.Len(), true
}

// SourceFeed 源 feed
func (d *Document) SourceFeed() *feed.Feed {
	return d.source
}

// Version 已合并的版本号，每次合并递增
func (d *Document) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Get 返回当前合并结果
func (d *Document) Get() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Document) snapshotLocked() State {
	return State{
		Version: d.version,
		Root:    deepCopy(d.state).(map[string]any),
	}
}

// ============================================================================
//                              变更
// ============================================================================

// Change 原子地应用一次变更并写入本地 feed
func (d *Document) Change(message string, fn func(tx *Tx)) error {
	tx := &Tx{}
	fn(tx)
	if len(tx.ops) == 0 {
		return ErrEmptyChange
	}
	return d.commit(message, tx.ops)
}

func (d *Document) commit(message string, ops []Op) error {
	if d.local == nil {
		return ErrReadOnly
	}

	d.changeMu.Lock()
	defer d.changeMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	deps := make(map[string]uint64, len(d.seqs))
	for a, s := range d.seqs {
		if a != d.actor {
			deps[a] = s
		}
	}
	c := Change{
		Actor:   d.actor,
		Seq:     d.local.Len() + 1,
		Clock:   d.clock + 1,
		Deps:    deps,
		Message: message,
		Ops:     ops,
	}
	d.mu.Unlock()

	data, err := c.encode()
	if err != nil {
		return err
	}
	// 本地 feed 的追加回调同步完成合并
	_, err = d.local.Append(data)
	return err
}

// ============================================================================
//                              feed 读取与合并
// ============================================================================

// ConnectPeer 开始读取 key 对应 actor 的 feed
func (d *Document) ConnectPeer(key types.Key) error {
	_, err := d.track(key)
	return err
}

// Actors 当前读取的 actor feed 公钥
func (d *Document) Actors() []types.Key {
	d.mu.Lock()
	keys := make([]types.Key, 0, len(d.feeds))
	for k := range d.feeds {
		keys = append(keys, k)
	}
	d.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (d *Document) track(key types.Key) (*feed.Feed, error) {
	d.mu.Lock()
	if t, ok := d.feeds[key]; ok {
		d.mu.Unlock()
		return t.feed, nil
	}
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	d.mu.Unlock()

	f, err := d.host.OpenFeed(key)
	if err != nil {
		logger.Warn("打开 actor feed 失败", "actor", key.Short(), "error", err)
		return nil, err
	}
	return d.attach(key, f), nil
}

func (d *Document) attach(key types.Key, f *feed.Feed) *feed.Feed {
	d.mu.Lock()
	if t, ok := d.feeds[key]; ok {
		d.mu.Unlock()
		return t.feed
	}
	t := &tracked{key: key, feed: f}
	d.feeds[key] = t
	d.mu.Unlock()

	cancel := f.OnAppend(func(uint64) { d.ingest(t) })
	d.mu.Lock()
	t.cancel = cancel
	d.mu.Unlock()

	d.ingest(t)
	return f
}

// ingest 读取 feed 中尚未处理的条目并合并
func (d *Document) ingest(t *tracked) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	added := false
	for t.read < t.feed.Len() {
		idx := t.read
		data, err := t.feed.Get(idx)
		if err != nil {
			logger.Warn("读取变更失败", "actor", t.key.Short(), "index", idx, "error", err)
			break
		}
		t.read++

		c, err := decodeChange(data)
		if err != nil || c.Actor != t.key.String() || c.Seq != idx+1 {
			logger.Warn("忽略无效变更", "actor", t.key.Short(), "index", idx, "error", err)
			continue
		}
		if d.pending[c.Actor] == nil {
			d.pending[c.Actor] = make(map[uint64]Change)
		}
		d.pending[c.Actor][c.Seq] = c
		added = true
	}

	var discover []types.Key
	if added {
		if d.drainLocked() {
			d.signalLocked()
		}
		discover = d.unknownActorsLocked()
		d.checkResolvedLocked()
	}
	d.mu.Unlock()

	for _, k := range discover {
		_, _ = d.track(k)
	}
}

// drainLocked 应用所有依赖已满足的变更，返回是否有新变更
func (d *Document) drainLocked() bool {
	var fresh []Change
	for progress := true; progress; {
		progress = false
		for actor, byseq := range d.pending {
			for {
				c, ok := byseq[d.seqs[actor]+1]
				if !ok || !d.readyLocked(c) {
					break
				}
				delete(byseq, c.Seq)
				d.seqs[actor] = c.Seq
				if c.Clock > d.clock {
					d.clock = c.Clock
				}
				fresh = append(fresh, c)
				progress = true
			}
			if len(byseq) == 0 {
				delete(d.pending, actor)
			}
		}
	}
	if len(fresh) == 0 {
		return false
	}

	sortChanges(fresh)
	if n := len(d.applied); n == 0 || d.applied[n-1].less(fresh[0]) {
		d.applied = append(d.applied, fresh...)
		for _, c := range fresh {
			d.applyLocked(c)
		}
	} else {
		// 有变更排在已应用变更之前，从头重放
		d.applied = append(d.applied, fresh...)
		sortChanges(d.applied)
		d.state = make(map[string]any)
		for _, c := range d.applied {
			d.applyLocked(c)
		}
	}
	d.version++
	return true
}

func (d *Document) readyLocked(c Change) bool {
	for a, s := range c.Deps {
		if d.seqs[a] < s {
			return false
		}
	}
	return true
}

func (d *Document) applyLocked(c Change) {
	if err := applyChange(d.state, c); err != nil {
		logger.Debug("变更包含无效操作", "actor", log.TruncateID(c.Actor, 8), "seq", c.Seq, "error", err)
	}
}

// unknownActorsLocked 文档或未满足依赖中出现但尚未读取的 actor
func (d *Document) unknownActorsLocked() []types.Key {
	seen := make(map[types.Key]struct{})
	consider := func(id string) {
		k, err := types.ParseKey(id)
		if err != nil {
			return
		}
		if _, ok := d.feeds[k]; ok {
			return
		}
		seen[k] = struct{}{}
	}

	if actors, ok := d.state[ActorsKey].(map[string]any); ok {
		for id, entry := range actors {
			consider(id)
			if m, ok := entry.(map[string]any); ok {
				for other := range m {
					consider(other)
				}
			}
		}
	}
	for _, byseq := range d.pending {
		for _, c := range byseq {
			for a := range c.Deps {
				consider(a)
			}
		}
	}

	out := make([]types.Key, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

// ============================================================================
//                              依赖解决
// ============================================================================

// FindingMissingPeers 仍在等待缺失的因果历史
func (d *Document) FindingMissingPeers() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.resolved
}

// GetMissing 在缺失的因果历史全部到达后调用 cb
//
// cb 在回调 goroutine 上执行，与更新回调串行。
func (d *Document) GetMissing(cb func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.resolved {
		d.queue = append(d.queue, cb)
		d.kickLocked()
		return
	}
	d.waiters = append(d.waiters, cb)
}

func (d *Document) checkResolvedLocked() {
	if d.resolved || len(d.pending) > 0 || d.source.Len() == 0 {
		return
	}
	if t, ok := d.feeds[d.id]; !ok || t.read < d.source.Len() {
		return
	}
	d.resolved = true
	d.queue = append(d.queue, d.waiters...)
	d.waiters = nil
	d.kickLocked()
	logger.Debug("依赖已解决", "id", d.id.Short(), "version", d.version)
}

// ============================================================================
//                              回调
// ============================================================================

// RegisterHandler 注册更新回调，返回取消函数
func (d *Document) RegisterHandler(h Handler) (cancel func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.handlers[id] = h
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.handlers, id)
		d.mu.Unlock()
	}
}

func (d *Document) signalLocked() {
	d.dirty = true
	d.kickLocked()
}

func (d *Document) kickLocked() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run 回调 goroutine
func (d *Document) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			if d.closed {
				d.mu.Unlock()
				return
			}
			calls := d.queue
			d.queue = nil
			dirty := d.dirty
			d.dirty = false
			var (
				st       State
				handlers []Handler
			)
			if dirty {
				st = d.snapshotLocked()
				ids := make([]uint64, 0, len(d.handlers))
				for id := range d.handlers {
					ids = append(ids, id)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
				for _, id := range ids {
					handlers = append(handlers, d.handlers[id])
				}
			}
			d.mu.Unlock()

			if len(calls) == 0 && !dirty {
				break
			}
			for _, fn := range calls {
				fn()
			}
			for _, h := range handlers {
				h(st)
			}
		}
	}
}

// Close 停止读取与回调，feed 由 Host 负责关闭
//
// 不能在更新回调中调用。
func (d *Document) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cancels := make([]func(), 0, len(d.feeds))
	for _, t := range d.feeds {
		if t.cancel != nil {
			cancels = append(cancels, t.cancel)
		}
	}
	d.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	close(d.done)
	d.wg.Wait()
	return nil
}
