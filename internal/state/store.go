package state

import (
	"strings"
	"sync"

	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"go.uber.org/zap"
)

// MaxNotifyDepth 处理器内再次 Set 触发的级联通知的最大深度
const MaxNotifyDepth = 8

// Handler 订阅回调，参数为订阅路径的最新值
type Handler func(value interface{})

// Store 分层状态树，支持点分路径读写与按路径订阅
//
// 通知逐条投递：处理器执行期间发生的 Set 会排队，在当前处理器返回后再投递。
type Store struct {
	mu   sync.RWMutex
	tree map[string]interface{}

	subMu  sync.Mutex
	subs   *node
	nextID uint64

	qmu         sync.Mutex
	queue       []pending
	dispatching bool
	current     int

	log *zap.Logger
}

// node 订阅树节点
type node struct {
	children map[string]*node
	handlers []subscription
}

type subscription struct {
	id uint64
	fn Handler
}

type pending struct {
	segments []string
	depth    int
}

// New 创建状态存储
func New() *Store {
	return NewWithTree(DefaultTree())
}

// NewWithTree 使用指定初始树创建状态存储
func NewWithTree(initial map[string]interface{}) *Store {
	if initial == nil {
		initial = map[string]interface{}{}
	}
	return &Store{
		tree: copyMap(initial),
		subs: &node{},
		log:  logger.GetModuleLogger(logger.ModuleState),
	}
}

// splitPath 拆分点分路径，空路径表示根
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get 读取路径上的值，返回副本；path 为空时返回整棵树
func (s *Store) Get(path string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyValue(lookup(s.tree, splitPath(path)))
}

// GetBool 读取布尔值，不存在或类型不符时返回 false
func (s *Store) GetBool(path string) bool {
	b, _ := s.Get(path).(bool)
	return b
}

func lookup(tree map[string]interface{}, segments []string) interface{} {
	var current interface{} = tree
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return current
}

// Set 写入路径上的值并通知订阅者
//
// 缺失的中间节点会被创建。merge 为 true 且新旧值都是映射时做浅合并，否则整体替换。
// 通知顺序：精确路径优先，然后由近及远通知每个祖先路径，最后是根。
func (s *Store) Set(path string, value interface{}, merge bool) {
	segments := splitPath(path)

	s.mu.Lock()
	if len(segments) == 0 {
		m, ok := value.(map[string]interface{})
		if !ok {
			s.mu.Unlock()
			s.log.Warn("根节点只能设置为映射", zap.Any("value", value))
			return
		}
		if merge {
			for k, v := range m {
				s.tree[k] = copyValue(v)
			}
		} else {
			s.tree = copyMap(m)
		}
	} else {
		parent := s.tree
		for _, seg := range segments[:len(segments)-1] {
			next, ok := parent[seg].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				parent[seg] = next
			}
			parent = next
		}

		last := segments[len(segments)-1]
		existing, existingIsMap := parent[last].(map[string]interface{})
		incoming, incomingIsMap := value.(map[string]interface{})
		if merge && existingIsMap && incomingIsMap {
			for k, v := range incoming {
				existing[k] = copyValue(v)
			}
		} else {
			parent[last] = copyValue(value)
		}
	}
	s.mu.Unlock()

	s.dispatch(segments)
}

// Subscribe 订阅路径变化，返回取消订阅函数
//
// 路径本身或其任意后代被 Set 时处理器都会收到该路径的最新值。空路径订阅整棵树。
func (s *Store) Subscribe(path string, handler Handler) func() {
	s.subMu.Lock()
	n := s.subs
	for _, seg := range splitPath(path) {
		if n.children == nil {
			n.children = map[string]*node{}
		}
		child, ok := n.children[seg]
		if !ok {
			child = &node{}
			n.children[seg] = child
		}
		n = child
	}
	s.nextID++
	id := s.nextID
	n.handlers = append(n.handlers, subscription{id: id, fn: handler})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range n.handlers {
				if sub.id == id {
					n.handlers = append(n.handlers[:i:i], n.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// dispatch 将通知入队，若当前没有投递中的通知则由本协程负责投递
func (s *Store) dispatch(segments []string) {
	s.qmu.Lock()
	depth := 0
	if s.dispatching {
		depth = s.current + 1
	}
	if depth >= MaxNotifyDepth {
		s.qmu.Unlock()
		s.log.Warn("通知级联过深，已丢弃",
			zap.String("path", strings.Join(segments, ".")),
			zap.Int("depth", depth),
		)
		return
	}

	s.queue = append(s.queue, pending{segments: segments, depth: depth})
	if s.dispatching {
		s.qmu.Unlock()
		return
	}

	s.dispatching = true
	for len(s.queue) > 0 {
		p := s.queue[0]
		s.queue = s.queue[1:]
		s.current = p.depth
		s.qmu.Unlock()

		s.notify(p.segments)

		s.qmu.Lock()
	}
	s.dispatching = false
	s.current = 0
	s.qmu.Unlock()
}

// notify 由近及远通知路径及其祖先的订阅者
func (s *Store) notify(segments []string) {
	// chain[i] 对应 segments[:i] 的订阅节点
	s.subMu.Lock()
	chain := make([][]subscription, 0, len(segments)+1)
	n := s.subs
	chain = append(chain, append([]subscription(nil), n.handlers...))
	for _, seg := range segments {
		if n = n.children[seg]; n == nil {
			break
		}
		chain = append(chain, append([]subscription(nil), n.handlers...))
	}
	s.subMu.Unlock()

	for i := len(chain) - 1; i >= 0; i-- {
		if len(chain[i]) == 0 {
			continue
		}
		path := strings.Join(segments[:i], ".")
		value := s.Get(path)
		for _, sub := range chain[i] {
			s.invoke(path, sub.fn, value)
		}
	}
}

func (s *Store) invoke(path string, fn Handler, value interface{}) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("订阅处理器异常", zap.String("path", path), zap.Any("panic", r))
		}
	}()
	fn(value)
}

// copyMap 复制映射，嵌套的映射和切片一并复制
func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	default:
		return v
	}
}
