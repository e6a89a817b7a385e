package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ActorsKey 根下 actor 可见性映射的键
const ActorsKey = "actors"

// ObjectIDKey 由 MakeMap 创建的 map 中保存对象标识的保留键
const ObjectIDKey = "_objectId"

// 操作类型
const (
	ActionSet   = "set"
	ActionMkMap = "mkmap"
	ActionDel   = "del"
)

// Op 单个操作
type Op struct {
	Action string   `json:"action"`
	Path   []string `json:"path"`
	Value  any      `json:"value,omitempty"`
}

// Change 一次原子变更，对应 actor feed 中的一个条目
type Change struct {
	// Actor 写入者（feed 公钥 hex）
	Actor string `json:"actor"`

	// Seq 在写入者 feed 中的序号，从 1 开始
	Seq uint64 `json:"seq"`

	// Clock Lamport 时钟
	Clock uint64 `json:"clock"`

	// Deps 写入时已应用的其他 actor 的最大序号
	Deps map[string]uint64 `json:"deps,omitempty"`

	Message string `json:"message,omitempty"`
	Ops     []Op   `json:"ops"`
}

func decodeChange(data []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return Change{}, err
	}
	return c, nil
}

func (c Change) encode() ([]byte, error) {
	return json.Marshal(c)
}

// less 合并顺序：(Clock, Actor, Seq)
func (c Change) less(o Change) bool {
	if c.Clock != o.Clock {
		return c.Clock < o.Clock
	}
	if c.Actor != o.Actor {
		return c.Actor < o.Actor
	}
	return c.Seq < o.Seq
}

func (c Change) objectID() string {
	return c.Actor[:min(len(c.Actor), 16)] + ":" + strconv.FormatUint(c.Seq, 10)
}

// ============================================================================
//                              Tx
// ============================================================================

// Tx 收集一次变更中的操作
type Tx struct {
	ops []Op
}

// Set 设置 path 处的值，缺失的中间 map 会被创建
func (tx *Tx) Set(value any, path ...string) {
	tx.ops = append(tx.ops, Op{Action: ActionSet, Path: path, Value: value})
}

// MakeMap 在 path 处创建 map（已存在时不变）
func (tx *Tx) MakeMap(path ...string) {
	tx.ops = append(tx.ops, Op{Action: ActionMkMap, Path: path})
}

// Ops 已收集的操作
func (tx *Tx) Ops() []Op {
	return tx.ops
}

// Delete 删除 path 处的值
func (tx *Tx) Delete(path ...string) {
	tx.ops = append(tx.ops, Op{Action: ActionDel, Path: path})
}

// ============================================================================
//                              应用
// ============================================================================

// applyChange 把变更应用到状态上，返回第一个无效操作的错误
//
// 无效操作被跳过，其余操作照常应用。
func applyChange(state map[string]any, c Change) error {
	var first error
	for i, op := range c.Ops {
		if err := applyOp(state, c, op); err != nil && first == nil {
			first = fmt.Errorf("op %d (%s): %w", i, op.Action, err)
		}
	}
	return first
}

func applyOp(state map[string]any, c Change, op Op) error {
	if len(op.Path) == 0 {
		return ErrInvalidPath
	}
	parent, ok := walk(state, op.Path[:len(op.Path)-1], op.Action != ActionDel)
	if !ok {
		if op.Action == ActionDel {
			return nil
		}
		return ErrInvalidPath
	}
	leaf := op.Path[len(op.Path)-1]

	switch op.Action {
	case ActionSet:
		parent[leaf] = normalize(op.Value)
	case ActionMkMap:
		if _, exists := parent[leaf].(map[string]any); !exists {
			parent[leaf] = map[string]any{ObjectIDKey: c.objectID()}
		}
	case ActionDel:
		delete(parent, leaf)
	default:
		return fmt.Errorf("unknown action %q", op.Action)
	}
	return nil
}

// walk 沿路径取得 map，create 为 true 时补齐缺失的 map
func walk(state map[string]any, path []string, create bool) (map[string]any, bool) {
	cur := state
	for _, p := range path {
		next, ok := cur[p]
		if !ok {
			if !create {
				return nil, false
			}
			m := map[string]any{}
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = m
	}
	return cur, true
}

// normalize 把值统一为 JSON 解码后的形态，本地与远端应用结果一致
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalize(vv)
		}
		return out
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// deepCopy 复制状态
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = deepCopy(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = deepCopy(vv)
		}
		return out
	}
	return v
}

// sortChanges 按合并顺序排序
func sortChanges(cs []Change) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].less(cs[j]) })
}
