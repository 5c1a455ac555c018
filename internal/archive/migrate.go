package archive

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/eventlog"
	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
)

// 旧格式中事件名和时间可能使用的字段
var (
	nameKeys   = []string{"name", "event", "code"}
	offsetKeys = []string{"offsetMs", "timeMs", "timestamp", "time"}
	labelKeys  = []string{"label", "teams"}
	timeKeys   = []string{"completedAt", "date", "savedAt"}
)

// decodeRecord 解码归档记录，旧版（裸数组）返回 migrated=true
func decodeRecord(data []byte) (rec record, migrated bool, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return record{Version: SchemaVersion}, false, nil
	}

	if trimmed[0] == '[' {
		games, err := DecodeLoose(trimmed)
		if err != nil {
			return record{}, false, err
		}
		return record{Version: SchemaVersion, Games: games}, true, nil
	}

	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return record{}, false, apperrors.Wrap(err, apperrors.ErrDataIntegrity, "归档记录")
	}
	for i := range rec.Games {
		rec.Games[i].Events = normalizeEvents(rec.Games[i].Events)
	}
	if rec.Version < SchemaVersion {
		rec.Version = SchemaVersion
		migrated = true
	}
	return rec, migrated, nil
}

// DecodeLoose 解析宽松格式的比赛数组（旧版记录或批量导入）
//
// 每个事件只保留名称和毫秒偏移两个字段，无法识别的事件被丢弃。
func DecodeLoose(data []byte) ([]SavedGame, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidImportData)
	}

	games := make([]SavedGame, 0, len(raw))
	for _, fields := range raw {
		if fields == nil {
			continue
		}
		games = append(games, looseGame(fields))
	}
	return games, nil
}

func looseGame(fields map[string]json.RawMessage) SavedGame {
	var g SavedGame

	if rawEvents, ok := fields["events"]; ok {
		var events []map[string]json.RawMessage
		if json.Unmarshal(rawEvents, &events) == nil {
			for _, ev := range events {
				if e, ok := looseEvent(ev); ok {
					g.Events = append(g.Events, e)
				}
			}
		}
	}

	if n, ok := firstNumber(fields, "elapsedMs", "duration"); ok {
		g.ElapsedMs = int64(n)
	}
	if s, ok := firstString(fields, labelKeys...); ok && s != "" {
		g.Label = StringPtr(s)
	}
	g.CompletedAt = firstTime(fields, timeKeys...)
	return g
}

func looseEvent(fields map[string]json.RawMessage) (eventlog.Event, bool) {
	name, ok := firstString(fields, nameKeys...)
	if !ok || name == "" {
		return eventlog.Event{}, false
	}
	offset, ok := firstNumber(fields, offsetKeys...)
	if !ok || offset < 0 {
		return eventlog.Event{}, false
	}
	return eventlog.Event{Name: name, OffsetMs: int64(math.Round(offset))}, true
}

func firstString(fields map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s, true
		}
	}
	return "", false
}

func firstNumber(fields map[string]json.RawMessage, keys ...string) (float64, bool) {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var n float64
		if json.Unmarshal(raw, &n) == nil {
			return n, true
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// firstTime 支持 RFC3339 字符串、YYYY-MM-DD 和毫秒时间戳
func firstTime(fields map[string]json.RawMessage, keys ...string) time.Time {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
				if t, err := time.Parse(layout, s); err == nil {
					return t
				}
			}
			continue
		}
		var ms float64
		if json.Unmarshal(raw, &ms) == nil && ms > 0 {
			return time.UnixMilli(int64(ms)).UTC()
		}
	}
	return time.Time{}
}

// normalizeEvents 丢弃无效事件，返回新切片
func normalizeEvents(events []eventlog.Event) []eventlog.Event {
	out := make([]eventlog.Event, 0, len(events))
	for _, e := range events {
		if e.Valid() {
			out = append(out, eventlog.Event{Name: e.Name, OffsetMs: e.OffsetMs})
		}
	}
	return out
}
