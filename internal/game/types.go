package game

import (
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/eventlog"
)

// SessionData 当前比赛的持久化数据
type SessionData struct {
	SessionID  string           `json:"sessionId"`
	State      GameState        `json:"state"`
	Events     []eventlog.Event `json:"events"`
	ElapsedMs  int64            `json:"elapsedMs"` // 不含当前运行段
	Origin     time.Time        `json:"origin"`    // 当前运行段起点
	StartedAt  time.Time        `json:"startedAt"`
	LastUpdate time.Time        `json:"lastUpdate"`
}

// Session 当前比赛快照
type Session struct {
	SessionID   string           `json:"sessionId,omitempty"`
	State       GameState        `json:"state"`
	IsActive    bool             `json:"isActive"`
	IsRunning   bool             `json:"isRunning"`
	ElapsedMs   int64            `json:"elapsedMs"`
	Display     string           `json:"display"`
	Events      []eventlog.Event `json:"events"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	ValidEvents []string         `json:"validEvents"`
}
