package actors

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-multicore/internal/core/document"
	"github.com/dep2p/go-multicore/pkg/lib/log"
)

var logger = log.Logger("core/actors")

// ErrNotConverging 同一目标被反复提交而文档未反映
var ErrNotConverging = errors.New("actors: reconciliation is not converging")

// Doc 注册表依赖的文档接口
type Doc interface {
	ActorID() string
	LocalLength() (length uint64, ok bool)
	Get() document.State
	Change(message string, fn func(tx *document.Tx)) error
	RegisterHandler(h document.Handler) (cancel func())
	GetMissing(cb func())
}

// State 注册表状态
type State int

const (
	// WaitingOnDependencies 等待缺失的因果历史，不做任何写入
	WaitingOnDependencies State = iota
	// Resolved 依赖已解决且首次对账已执行
	Resolved
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case WaitingOnDependencies:
		return "waiting"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Stats 对账统计
type Stats struct {
	Passes  int // 实际比较过集合的对账次数
	Skips   int // 版本未变而跳过的次数
	Commits int // 提交次数
}

// Registry actor 可见性注册表
//
// 每个 actor 只写 actors[自己]，内容为文档中出现的其他 actor。
// 每次文档更新都会重新对账，集合不变时不写入，因此自身提交引起的更新会停在不动点。
type Registry struct {
	doc Doc
	cfg Config
	clk clock.Clock

	mu          sync.Mutex
	state       State
	started     bool
	closed      bool
	timer       *clock.Timer
	cancel      func()
	lastVersion uint64
	hasVersion  bool
	lastTarget  map[string]bool
	streak      int
	stats       Stats
}

// New 创建注册表，Start 之前不做任何事
func New(doc Doc, cfg Config) *Registry {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	if cfg.MaxCommitStreak <= 0 {
		cfg.MaxCommitStreak = DefaultConfig().MaxCommitStreak
	}
	return &Registry{doc: doc, cfg: cfg, clk: clk}
}

// Start 订阅文档更新，并在依赖解决且等待 SettleDelay 后执行首次对账
func (r *Registry) Start() {
	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	cancel := r.doc.RegisterHandler(func(document.State) { r.trigger() })
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.doc.GetMissing(r.onResolved)
}

func (r *Registry) onResolved() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	logger.Debug("依赖已解决", "actor", log.TruncateID(r.doc.ActorID(), 8), "settle", r.cfg.SettleDelay)

	if r.cfg.SettleDelay > 0 {
		r.timer = r.clk.AfterFunc(r.cfg.SettleDelay, r.resolve)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.resolve()
}

func (r *Registry) resolve() {
	r.mu.Lock()
	if r.closed || r.state == Resolved {
		r.mu.Unlock()
		return
	}
	r.state = Resolved
	r.mu.Unlock()

	r.trigger()
}

// trigger 文档更新或首次对账
func (r *Registry) trigger() {
	if _, err := r.Reconcile(); err != nil && !errors.Is(err, document.ErrClosed) {
		logger.Warn("对账失败", "actor", log.TruncateID(r.doc.ActorID(), 8), "error", err)
	}
}

// State 当前状态
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats 返回统计
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ============================================================================
//                              对账
// ============================================================================

// Reconcile 执行一次对账，返回是否提交了变更
//
// 等待依赖期间直接返回。文档版本与上次对账相同则跳过；否则比较
// 文档中其他 actor 的集合与自己已记录的条目，只在不同时提交一次。
func (r *Registry) Reconcile() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.state != Resolved {
		return false, nil
	}

	st := r.doc.Get()
	if r.hasVersion && st.Version == r.lastVersion {
		r.stats.Skips++
		return false, nil
	}
	r.stats.Passes++

	actorID := r.doc.ActorID()
	seen := seenActors(st, actorID)
	prev, hasPrev := entryOf(st, actorID)

	if hasPrev && sameSet(seen, prev) {
		r.lastVersion, r.hasVersion = st.Version, true
		r.streak = 0
		return false, nil
	}

	length, writable := r.doc.LocalLength()
	if !writable {
		// 只读 actor 无法发布自己的条目
		r.lastVersion, r.hasVersion = st.Version, true
		return false, nil
	}

	if r.lastTarget != nil && sameSet(seen, r.lastTarget) {
		r.streak++
	} else {
		r.streak = 1
	}
	if r.streak > r.cfg.MaxCommitStreak {
		r.lastVersion, r.hasVersion = st.Version, true
		logger.Error("对账未收敛，停止提交",
			"actor", log.TruncateID(actorID, 8),
			"streak", r.streak,
			"version", st.Version)
		return false, ErrNotConverging
	}

	bootstrap := !hasPrev && length == 0
	value := make(map[string]any, len(seen))
	for id := range seen {
		value[id] = true
	}
	err := r.doc.Change(commitMessage(bootstrap), func(tx *document.Tx) {
		if bootstrap {
			tx.MakeMap(document.ActorsKey)
		}
		tx.Set(value, document.ActorsKey, actorID)
	})
	if err != nil {
		return false, err
	}

	r.lastVersion, r.hasVersion = st.Version, true
	r.lastTarget = seen
	r.stats.Commits++
	logger.Info("更新 actor 可见性",
		"actor", log.TruncateID(actorID, 8),
		"known", len(seen),
		"bootstrap", bootstrap,
		"actors", strings.Join(shortIDs(seen), ","))
	return true, nil
}

// Close 取消订阅并停止计时器
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// ============================================================================
//                              集合
// ============================================================================

// seenActors 文档 actors 映射中除自己与保留键以外的 actor
func seenActors(st document.State, self string) map[string]bool {
	out := make(map[string]bool)
	actors, ok := st.Map(document.ActorsKey)
	if !ok {
		return out
	}
	for id := range actors {
		if id == self || id == document.ObjectIDKey {
			continue
		}
		out[id] = true
	}
	return out
}

// entryOf 返回 actors[self] 记录的集合
func entryOf(st document.State, self string) (map[string]bool, bool) {
	entry, ok := st.Map(document.ActorsKey, self)
	if !ok {
		return nil, false
	}
	out := make(map[string]bool, len(entry))
	for id := range entry {
		if id == document.ObjectIDKey {
			continue
		}
		out[id] = true
	}
	return out, true
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func commitMessage(bootstrap bool) string {
	if bootstrap {
		return "actors: bootstrap"
	}
	return "actors: update"
}

func shortIDs(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, log.TruncateID(id, 8))
	}
	sort.Strings(ids)
	return ids
}
