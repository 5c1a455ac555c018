package eventlog

import (
	"sync"
)

// Event 一次记录的比赛事件，OffsetMs 为距比赛开始的毫秒数
type Event struct {
	Name     string `json:"name"`
	OffsetMs int64  `json:"offsetMs"`
}

// Valid 事件是否可用于渲染
func (e Event) Valid() bool {
	return e.Name != "" && e.OffsetMs >= 0
}

// Log 按插入顺序保存的事件序列
type Log struct {
	mu     sync.RWMutex
	events []Event
}

// NewLog 创建事件序列
func NewLog(events ...Event) *Log {
	return &Log{events: append([]Event(nil), events...)}
}

// Add 追加事件
func (l *Log) Add(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// Events 返回事件副本
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event{}, l.events...)
}

// Len 事件数量
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Reset 清空事件
func (l *Log) Reset() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}
