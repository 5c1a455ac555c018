package archive

import (
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/eventlog"
)

// SchemaVersion 当前归档记录版本
const SchemaVersion = 2

// DefaultMaxGames 默认最多保存的比赛数
const DefaultMaxGames = 20

// SavedGame 已完成并归档的比赛
type SavedGame struct {
	Events      []eventlog.Event `json:"events"`
	ElapsedMs   int64            `json:"elapsedMs"`
	CompletedAt time.Time        `json:"completedAt"`
	Label       *string          `json:"label"`
}

// LabelOr 返回标签，未设置时返回 fallback
func (g SavedGame) LabelOr(fallback string) string {
	if g.Label == nil || *g.Label == "" {
		return fallback
	}
	return *g.Label
}

// GameUpdate 归档比赛的部分更新，nil 字段保持不变
//
// Label 指向空字符串时清除标签。
type GameUpdate struct {
	Label       *string    `json:"label,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// record 持久化的归档记录
type record struct {
	Version int         `json:"version"`
	Games   []SavedGame `json:"games"`
}

// UsageReport 存储使用情况估算
type UsageReport struct {
	ArchiveBytes int64   `json:"archiveBytes"`
	TotalBytes   int64   `json:"totalBytes"`
	QuotaBytes   int64   `json:"quotaBytes"`
	Percent      float64 `json:"percent"`
	Warning      bool    `json:"warning"`
	GameCount    int     `json:"gameCount"`
}

// StringPtr 返回字符串指针
func StringPtr(s string) *string {
	return &s
}
