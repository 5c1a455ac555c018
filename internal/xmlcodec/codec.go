package xmlcodec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/archive"
	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/eventlog"
	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// 导入文件的方言
const (
	DialectAttribute = "attribute" // <event event="..." timeMs="..."/>
	DialectInterval  = "interval"  // <instance><ID/><start/><end/><code/></instance>
)

// dateLayout 导出文件中的日期格式
const dateLayout = "2006-01-02"

// Document 解析结果
type Document struct {
	Events  []eventlog.Event
	Teams   string // 根元素 game 的 teams 属性
	Date    string // 根元素 game 的 date 属性
	Dialect string
}

// rawEvent 属性方言中的一个元素
type rawEvent struct {
	name   *string
	timeMs *string
}

// rawInstance 区间方言中的一个元素
type rawInstance struct {
	ID    *string `xml:"ID"`
	Start *string `xml:"start"`
	End   *string `xml:"end"`
	Code  *string `xml:"code"`
}

// Parse 解析导入的XML，优先使用属性方言，没有 event 元素时回退到区间方言
func Parse(data []byte) (Document, error) {
	log := logger.GetModuleLogger(logger.ModuleXML)

	var (
		doc       Document
		events    []rawEvent
		instances []rawInstance
		depth     int
		sawRoot   bool
	)

	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn("XML解析失败", zap.Error(err))
			return Document{}, apperrors.Wrap(err, apperrors.ErrXMLMalformed)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			switch t.Name.Local {
			case "game":
				if depth == 0 {
					doc.Teams, _ = attr(t, "teams")
					doc.Date, _ = attr(t, "date")
				}
			case "event":
				var ev rawEvent
				if v, ok := attr(t, "event"); ok {
					ev.name = &v
				}
				if v, ok := attr(t, "timeMs"); ok {
					ev.timeMs = &v
				}
				events = append(events, ev)
			case "instance":
				var inst rawInstance
				if err := d.DecodeElement(&inst, &t); err != nil {
					return Document{}, apperrors.Wrap(err, apperrors.ErrXMLMalformed)
				}
				instances = append(instances, inst)
				// DecodeElement 已消费结束标签
				continue
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}

	if !sawRoot || depth != 0 {
		return Document{}, apperrors.New(apperrors.ErrXMLMalformed, "缺少根元素或元素未闭合")
	}

	var err error
	switch {
	case len(events) > 0:
		doc.Dialect = DialectAttribute
		doc.Events, err = fromEvents(events)
	case len(instances) > 0:
		doc.Dialect = DialectInterval
		doc.Events, err = fromInstances(instances)
	default:
		return Document{}, apperrors.New(apperrors.ErrNoEventsFound)
	}
	if err != nil {
		return Document{}, err
	}

	log.Debug("XML解析完成",
		zap.String("dialect", doc.Dialect),
		zap.Int("events", len(doc.Events)),
	)
	return doc, nil
}

// Validate 校验XML能否导入
func Validate(data []byte) error {
	_, err := Parse(data)
	return err
}

func attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func fromEvents(raw []rawEvent) ([]eventlog.Event, error) {
	events := make([]eventlog.Event, 0, len(raw))
	for i, r := range raw {
		if r.name == nil || r.timeMs == nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidEventData, "第 %d 个 event 元素缺少 event 或 timeMs", i+1)
		}
		offset, err := parseNumber(*r.timeMs)
		if err != nil || offset < 0 {
			return nil, apperrors.Newf(apperrors.ErrInvalidEventData, "第 %d 个 event 元素的 timeMs 无效: %q", i+1, *r.timeMs)
		}
		events = append(events, eventlog.Event{Name: *r.name, OffsetMs: int64(math.Round(offset))})
	}
	return events, nil
}

// fromInstances 以区间中点还原事件时间
func fromInstances(raw []rawInstance) ([]eventlog.Event, error) {
	events := make([]eventlog.Event, 0, len(raw))
	for i, r := range raw {
		if r.ID == nil || r.Start == nil || r.End == nil || r.Code == nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidEventData, "第 %d 个 instance 元素缺少 ID、start、end 或 code", i+1)
		}
		start, err1 := parseNumber(*r.Start)
		end, err2 := parseNumber(*r.End)
		if err1 != nil || err2 != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidEventData, "第 %d 个 instance 元素的时间无效", i+1)
		}
		offset := math.Round((start + end) / 2 * 1000)
		if offset < 0 {
			offset = 0
		}
		events = append(events, eventlog.Event{Name: strings.TrimSpace(*r.Code), OffsetMs: int64(offset)})
	}
	return events, nil
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Game 转换为归档比赛，没有日期时使用 now
func (d Document) Game(now time.Time) archive.SavedGame {
	g := archive.SavedGame{
		Events:      append([]eventlog.Event(nil), d.Events...),
		CompletedAt: now,
	}
	if d.Teams != "" {
		g.Label = archive.StringPtr(d.Teams)
	}
	if t, err := time.Parse(dateLayout, d.Date); err == nil {
		g.CompletedAt = t
	}
	for _, e := range d.Events {
		if e.OffsetMs > g.ElapsedMs {
			g.ElapsedMs = e.OffsetMs
		}
	}
	return g
}

// defaultLabel 未设置标签时使用的名称，n 从1开始
func defaultLabel(n int) string {
	return fmt.Sprintf("Game %d", n)
}

// attrEscaper 属性值转义，换行和制表符用字符引用保留，否则解析时会被规范化
var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
	"\r", "&#xD;",
	"\n", "&#xA;",
	"\t", "&#x9;",
)

// EncodeGame 将归档比赛编码为属性方言XML
func EncodeGame(game archive.SavedGame, n int) ([]byte, error) {
	if game.CompletedAt.IsZero() {
		return nil, apperrors.New(apperrors.ErrMissingCompletedAt)
	}

	var b bytes.Buffer
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, "<game date=\"%s\" teams=\"%s\">\n",
		game.CompletedAt.UTC().Format(dateLayout),
		attrEscaper.Replace(game.LabelOr(defaultLabel(n))),
	)
	b.WriteString("    <events>\n")
	for _, e := range game.Events {
		fmt.Fprintf(&b, "        <event event=\"%s\" timeMs=\"%d\" />\n", attrEscaper.Replace(e.Name), e.OffsetMs)
	}
	b.WriteString("    </events>\n")
	b.WriteString("</game>\n")
	return b.Bytes(), nil
}

// FileName 导出文件名，例如 2024-03-02-hawks-vs-owls.xml
func FileName(game archive.SavedGame, n int) string {
	date := game.CompletedAt.UTC().Format(dateLayout)
	name := slug.Make(date + " " + game.LabelOr(defaultLabel(n)))
	if name == "" {
		name = "game"
	}
	return name + ".xml"
}
