package xmlcodec

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/archive"
	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var completed = time.Date(2024, 3, 2, 15, 30, 0, 0, time.UTC)

func TestRoundTrip(t *testing.T) {
	cases := [][]eventlog.Event{
		{{Name: "goal", OffsetMs: 0}},
		{{Name: "goal", OffsetMs: 1234}, {Name: "goal", OffsetMs: 1234}, {Name: "short corner", OffsetMs: 999999}},
		{{Name: `<a & 'b' "c">`, OffsetMs: 42}, {Name: "ünïcødé", OffsetMs: 7}},
		{{Name: "cr\rx", OffsetMs: 1}, {Name: "line\nbreak", OffsetMs: 2}, {Name: "\ttab ", OffsetMs: 3}, {Name: "crlf\r\n", OffsetMs: 4}},
	}

	for i, events := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			data, err := EncodeGame(archive.SavedGame{Events: events, CompletedAt: completed}, 1)
			require.NoError(t, err)

			doc, err := Parse(data)
			require.NoError(t, err)
			assert.Equal(t, DialectAttribute, doc.Dialect)
			assert.Equal(t, events, doc.Events)
		})
	}
}

func TestEncodeGameFormat(t *testing.T) {
	data, err := EncodeGame(archive.SavedGame{
		Events:      []eventlog.Event{{Name: "goal", OffsetMs: 1500}},
		CompletedAt: completed,
	}, 3)
	require.NoError(t, err)

	expected := `<?xml version="1.0" encoding="UTF-8"?>
<game date="2024-03-02" teams="Game 3">
    <events>
        <event event="goal" timeMs="1500" />
    </events>
</game>
`
	assert.Equal(t, expected, string(data))

	data, err = EncodeGame(archive.SavedGame{CompletedAt: completed, Label: archive.StringPtr("Hawks & Owls")}, 1)
	require.NoError(t, err)
	assert.Contains(t, string(data), `teams="Hawks &amp; Owls"`)

	_, err = EncodeGame(archive.SavedGame{}, 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrMissingCompletedAt))
}

func TestParseTeamsAndDate(t *testing.T) {
	doc, err := Parse([]byte(`<game date="2024-03-02" teams="Hawks vs Owls"><events><event event="goal" timeMs="10"/></events></game>`))
	require.NoError(t, err)
	assert.Equal(t, "Hawks vs Owls", doc.Teams)
	assert.Equal(t, "2024-03-02", doc.Date)

	g := doc.Game(time.Now())
	assert.Equal(t, "Hawks vs Owls", g.LabelOr(""))
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), g.CompletedAt)
	assert.Equal(t, int64(10), g.ElapsedMs)
}

func TestParseLegacyMidpoint(t *testing.T) {
	doc, err := Parse([]byte(`<file><ALL_INSTANCES>
<instance><ID>1</ID><start>55</start><end>65</end><code>goal</code></instance>
<instance><ID>2</ID><start>0</start><end>8</end><code>a &amp; b</code></instance>
</ALL_INSTANCES></file>`))
	require.NoError(t, err)
	assert.Equal(t, DialectInterval, doc.Dialect)
	assert.Equal(t, []eventlog.Event{
		{Name: "goal", OffsetMs: 60000},
		{Name: "a & b", OffsetMs: 4000},
	}, doc.Events)

	now := time.Now()
	assert.Equal(t, now, doc.Game(now).CompletedAt)
}

func TestParseLegacyFromIntervalXML(t *testing.T) {
	events := []eventlog.Event{{Name: "goal", OffsetMs: 60000}, {Name: "foul", OffsetMs: 125000}}
	doc, err := Parse([]byte("<root>" + eventlog.IntervalXML(events) + "</root>"))
	require.NoError(t, err)
	assert.Equal(t, events, doc.Events)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		xml  string
		code apperrors.ErrorCode
	}{
		{"malformed", `<game><events><event event="a" timeMs="1"></events>`, apperrors.ErrXMLMalformed},
		{"unclosed", `<game><events>`, apperrors.ErrXMLMalformed},
		{"empty", ``, apperrors.ErrXMLMalformed},
		{"no events", `<game date="2024-01-01"><events></events></game>`, apperrors.ErrNoEventsFound},
		{"missing timeMs", `<game><events><event event="a" timeMs="1"/><event event="b"/></events></game>`, apperrors.ErrInvalidEventData},
		{"bad timeMs", `<game><events><event event="a" timeMs="soon"/></events></game>`, apperrors.ErrInvalidEventData},
		{"missing code", `<r><instance><ID>1</ID><start>1</start><end>2</end></instance></r>`, apperrors.ErrInvalidEventData},
		{"bad start", `<r><instance><ID>1</ID><start>x</start><end>2</end><code>a</code></instance></r>`, apperrors.ErrInvalidEventData},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate([]byte(tc.xml))
			require.Error(t, err)
			assert.Equal(t, tc.code, apperrors.GetCode(err), err.Error())
		})
	}
}

func TestAttributeDialectPreferred(t *testing.T) {
	doc, err := Parse([]byte(`<game><events><event event="goal" timeMs="5"/></events>
<instance><ID>1</ID><start>55</start><end>65</end><code>old</code></instance></game>`))
	require.NoError(t, err)
	assert.Equal(t, DialectAttribute, doc.Dialect)
	assert.Equal(t, []eventlog.Event{{Name: "goal", OffsetMs: 5}}, doc.Events)
}

func TestFileName(t *testing.T) {
	g := archive.SavedGame{CompletedAt: completed, Label: archive.StringPtr("Hawks vs. Owls!")}
	assert.Equal(t, "2024-03-02-hawks-vs-owls.xml", FileName(g, 1))

	g.Label = nil
	name := FileName(g, 4)
	assert.True(t, strings.HasPrefix(name, "2024-03-02-game-4"), name)
}
