package eventlog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"go.uber.org/zap"
)

// ClipMarginSeconds 区间XML中事件前后各保留的秒数
const ClipMarginSeconds = 5

// 空列表时的占位文本
const (
	NoEventsPlaceholder = "No events logged yet"
	NoStatsPlaceholder  = "No statistics available"
)

// StatEntry 单个事件名的出现次数
type StatEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Views 事件序列的三种派生视图
type Views struct {
	Timeline        []Event     `json:"timeline"`
	TimelineEmpty   string      `json:"timelineEmpty,omitempty"`
	IntervalXML     string      `json:"intervalXml"`
	Statistics      []StatEntry `json:"statistics"`
	StatisticsEmpty string      `json:"statisticsEmpty,omitempty"`
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// EscapeXML 转义XML文本中的特殊字符
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// valid 过滤无效事件并记录警告
func valid(events []Event, view string) []Event {
	out := make([]Event, 0, len(events))
	for i, e := range events {
		if !e.Valid() {
			logger.GetModuleLogger(logger.ModuleGame).Warn("跳过无效事件",
				zap.String("view", view),
				zap.Int("index", i),
				zap.Int64("offset_ms", e.OffsetMs),
			)
			continue
		}
		out = append(out, e)
	}
	return out
}

// Timeline 按时间倒序排列（最近的在前），相同时间保持插入顺序
func Timeline(events []Event) []Event {
	out := valid(events, "timeline")
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OffsetMs > out[j].OffsetMs
	})
	return out
}

// Window 返回事件所在的剪辑区间（秒）
func Window(offsetMs int64) (start, end int64) {
	seconds := offsetMs / 1000
	start = seconds - ClipMarginSeconds
	if start < 0 {
		start = 0
	}
	return start, seconds + ClipMarginSeconds
}

// IntervalXML 按插入顺序生成区间XML片段
func IntervalXML(events []Event) string {
	var b strings.Builder
	for i, e := range valid(events, "interval_xml") {
		start, end := Window(e.OffsetMs)
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "<instance>\n    <ID>%d</ID>\n    <start>%d</start>\n    <end>%d</end>\n    <code>%s</code>\n</instance>",
			i+1, start, end, EscapeXML(e.Name))
	}
	return b.String()
}

// Statistics 统计每个事件名的次数，按名称升序
func Statistics(events []Event) []StatEntry {
	counts := make(map[string]int)
	for _, e := range valid(events, "statistics") {
		counts[e.Name]++
	}

	out := make([]StatEntry, 0, len(counts))
	for name, count := range counts {
		out = append(out, StatEntry{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RenderAll 生成全部视图
func RenderAll(events []Event) Views {
	v := Views{
		Timeline:    Timeline(events),
		IntervalXML: IntervalXML(events),
		Statistics:  Statistics(events),
	}
	if len(v.Timeline) == 0 {
		v.TimelineEmpty = NoEventsPlaceholder
	}
	if len(v.Statistics) == 0 {
		v.StatisticsEmpty = NoStatsPlaceholder
	}
	return v
}
