package eventlog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineDescending(t *testing.T) {
	events := []Event{
		{Name: "goal", OffsetMs: 1000},
		{Name: "foul", OffsetMs: 5000},
		{Name: "corner", OffsetMs: 3000},
		{Name: "card", OffsetMs: 5000},
	}

	got := Timeline(events)
	assert.Equal(t, []Event{
		{Name: "foul", OffsetMs: 5000},
		{Name: "card", OffsetMs: 5000},
		{Name: "corner", OffsetMs: 3000},
		{Name: "goal", OffsetMs: 1000},
	}, got)

	// 输入不被修改
	assert.Equal(t, "goal", events[0].Name)
}

func TestTimelineSkipsMalformed(t *testing.T) {
	got := Timeline([]Event{{Name: "", OffsetMs: 10}, {Name: "goal", OffsetMs: 20}})
	assert.Equal(t, []Event{{Name: "goal", OffsetMs: 20}}, got)
}

func TestWindowClampsAtZero(t *testing.T) {
	start, end := Window(3000)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(8), end)

	start, end = Window(60999)
	assert.Equal(t, int64(55), start)
	assert.Equal(t, int64(65), end)
}

func TestIntervalXML(t *testing.T) {
	xml := IntervalXML([]Event{
		{Name: "goal", OffsetMs: 3000},
		{Name: `a<b>&'c"`, OffsetMs: 60000},
	})

	blocks := strings.Split(xml, "\n<instance>")
	require.Len(t, blocks, 2)

	assert.Contains(t, blocks[0], "<ID>1</ID>")
	assert.Contains(t, blocks[0], "<start>0</start>")
	assert.Contains(t, blocks[0], "<end>8</end>")
	assert.Contains(t, blocks[0], "<code>goal</code>")

	assert.Contains(t, blocks[1], "<ID>2</ID>")
	assert.Contains(t, blocks[1], "<start>55</start>")
	assert.Contains(t, blocks[1], "<end>65</end>")
	assert.Contains(t, blocks[1], "<code>a&lt;b&gt;&amp;&apos;c&quot;</code>")
}

func TestIntervalXMLEmpty(t *testing.T) {
	assert.Equal(t, "", IntervalXML(nil))
}

func TestStatistics(t *testing.T) {
	got := Statistics([]Event{
		{Name: "goal", OffsetMs: 1},
		{Name: "goal", OffsetMs: 2},
		{Name: "foul", OffsetMs: 3},
		{Name: "", OffsetMs: 4},
	})
	assert.Equal(t, []StatEntry{{Name: "foul", Count: 1}, {Name: "goal", Count: 2}}, got)
}

func TestRenderAllPlaceholders(t *testing.T) {
	v := RenderAll(nil)
	assert.Empty(t, v.Timeline)
	assert.Equal(t, NoEventsPlaceholder, v.TimelineEmpty)
	assert.Equal(t, NoStatsPlaceholder, v.StatisticsEmpty)
	assert.Empty(t, v.IntervalXML)

	v = RenderAll([]Event{{Name: "goal", OffsetMs: 1000}})
	assert.Empty(t, v.TimelineEmpty)
	assert.Empty(t, v.StatisticsEmpty)
	assert.Len(t, v.Statistics, 1)
}

func TestLog(t *testing.T) {
	l := NewLog(Event{Name: "a", OffsetMs: 1})
	l.Add(Event{Name: "b", OffsetMs: 2})
	assert.Equal(t, 2, l.Len())

	events := l.Events()
	events[0].Name = "changed"
	assert.Equal(t, "a", l.Events()[0].Name)

	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.NotNil(t, l.Events())
}
