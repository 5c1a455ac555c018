package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

// recorder 记录显示回调
type recorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *recorder) show(text string) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

func TestPauseResumeElapsed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := New(clock, time.Second, nil)

	tm.Start()
	clock.Advance(5000 * time.Millisecond)
	tm.Pause()
	assert.Equal(t, int64(5000), tm.ElapsedMs())

	// 暂停期间不计时
	clock.Advance(10 * time.Second)
	assert.Equal(t, int64(5000), tm.ElapsedMs())

	tm.Resume()
	clock.Advance(3000 * time.Millisecond)
	assert.Equal(t, int64(8000), tm.ElapsedMs())
	assert.True(t, tm.Running())
}

func TestStartTwiceDoesNotDoubleCount(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := New(clock, time.Second, nil)

	tm.Start()
	clock.Advance(2 * time.Second)
	tm.Start()
	clock.Advance(2 * time.Second)
	assert.Equal(t, 4*time.Second, tm.Elapsed())
}

func TestPauseIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := New(clock, time.Second, nil)

	tm.Pause()
	assert.Equal(t, time.Duration(0), tm.Elapsed())

	tm.Start()
	clock.Advance(time.Second)
	tm.Pause()
	tm.Pause()
	assert.Equal(t, time.Second, tm.Elapsed())
	assert.False(t, tm.Running())
}

func TestTickUpdatesDisplay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	tm := New(clock, time.Second, rec.show)

	tm.Start()
	assert.Equal(t, "00:00", rec.last())

	clock.Advance(65 * time.Second)
	assert.Eventually(t, func() bool { return rec.last() == "01:05" }, time.Second, 5*time.Millisecond)

	tm.Pause()
	assert.Equal(t, "01:05", rec.last())
}

func TestNoTicksAfterPause(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	tm := New(clock, time.Second, rec.show)

	tm.Start()
	tm.Pause()
	rec.mu.Lock()
	count := len(rec.texts)
	rec.mu.Unlock()

	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.texts, count)
}

func TestStaleTickIgnored(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	tm := New(clock, time.Second, rec.show)

	tm.Start()
	tm.mu.Lock()
	stale := tm.generation
	tm.mu.Unlock()

	tm.Pause()
	tm.Resume()
	clock.Advance(3 * time.Second)
	tm.Pause()
	before := rec.last()

	// 上一轮运行的 tick 不再生效
	tm.tick(stale)
	assert.Equal(t, before, rec.last())
}

func TestResetAndRestore(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := New(clock, time.Second, nil)

	tm.Start()
	clock.Advance(7 * time.Second)
	tm.Reset()
	assert.Equal(t, time.Duration(0), tm.Elapsed())
	assert.False(t, tm.Running())

	origin := clock.Now().Add(-2 * time.Second)
	tm.Restore(10*time.Second, true, origin)
	assert.Equal(t, 12*time.Second, tm.Elapsed())

	elapsed, running, gotOrigin := tm.Snapshot()
	assert.Equal(t, 10*time.Second, elapsed)
	assert.True(t, running)
	assert.Equal(t, origin, gotOrigin)

	tm.Restore(4*time.Second, false, time.Time{})
	clock.Advance(time.Minute)
	assert.Equal(t, 4*time.Second, tm.Elapsed())
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "00:59", FormatClock(59999*time.Millisecond))
	assert.Equal(t, "01:00", FormatClock(time.Minute))
	assert.Equal(t, "75:30", FormatClock(75*time.Minute+30*time.Second))
	assert.Equal(t, "125:00", FormatClock(125*time.Minute))
	assert.Equal(t, "00:00", FormatClock(-time.Second))
}
