package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DisplayFunc 接收格式化后的 MM:SS 文本
type DisplayFunc func(text string)

// Timer 比赛计时器
//
// 已用时间始终按 elapsed + (now - origin) 实时计算，周期性的 tick 只负责刷新显示。
type Timer struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	interval time.Duration
	display  DisplayFunc

	running    bool
	origin     time.Time     // 本次运行的起点
	elapsed    time.Duration // 之前各段运行累计的时间
	generation uint64        // 每次启动递增，旧 tick 据此失效
	stopCh     chan struct{}

	log *zap.Logger
}

// New 创建计时器
func New(clock clockwork.Clock, interval time.Duration, display DisplayFunc) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{
		clock:    clock,
		interval: interval,
		display:  display,
		log:      logger.GetModuleLogger(logger.ModuleTimer),
	}
}

// Start 开始计时，已在运行时无操作
func (t *Timer) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		t.log.Debug("计时器已在运行，忽略重复启动")
		return
	}
	t.origin = t.clock.Now()
	t.running = true
	t.startTickerLocked()
	text := FormatClock(t.elapsed)
	t.mu.Unlock()

	t.show(text)
}

// Resume 继续计时
func (t *Timer) Resume() {
	t.Start()
}

// Pause 暂停计时，未运行时无操作
func (t *Timer) Pause() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.elapsed += t.clock.Since(t.origin)
	t.running = false
	t.stopTickerLocked()
	text := FormatClock(t.elapsed)
	t.mu.Unlock()

	t.show(text)
}

// Reset 停止计时并清零
func (t *Timer) Reset() {
	t.mu.Lock()
	t.stopTickerLocked()
	t.running = false
	t.elapsed = 0
	t.origin = time.Time{}
	t.mu.Unlock()

	t.show(FormatClock(0))
}

// Restore 恢复持久化的计时状态
func (t *Timer) Restore(elapsed time.Duration, running bool, origin time.Time) {
	t.mu.Lock()
	t.stopTickerLocked()
	t.elapsed = elapsed
	t.running = running
	t.origin = origin
	if running {
		if origin.IsZero() {
			t.origin = t.clock.Now()
		}
		t.startTickerLocked()
	}
	text := FormatClock(t.elapsedLocked())
	t.mu.Unlock()

	t.show(text)
}

// Elapsed 当前已用时间
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked()
}

// ElapsedMs 当前已用毫秒数
func (t *Timer) ElapsedMs() int64 {
	return t.Elapsed().Milliseconds()
}

// Running 是否正在计时
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Snapshot 返回累计时间、运行状态和本次运行起点
func (t *Timer) Snapshot() (elapsed time.Duration, running bool, origin time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed, t.running, t.origin
}

// Clock 计时器使用的时钟
func (t *Timer) Clock() clockwork.Clock {
	return t.clock
}

func (t *Timer) elapsedLocked() time.Duration {
	if t.running {
		return t.elapsed + t.clock.Since(t.origin)
	}
	return t.elapsed
}

func (t *Timer) startTickerLocked() {
	t.generation++
	t.stopCh = make(chan struct{})
	ticker := t.clock.NewTicker(t.interval)
	go t.run(ticker, t.generation, t.stopCh)
}

func (t *Timer) stopTickerLocked() {
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
}

func (t *Timer) run(ticker clockwork.Ticker, generation uint64, stopCh <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			t.tick(generation)
		}
	}
}

// tick 刷新显示；已暂停或属于旧一轮运行时无操作
func (t *Timer) tick(generation uint64) {
	t.mu.Lock()
	if !t.running || generation != t.generation {
		t.mu.Unlock()
		return
	}
	text := FormatClock(t.elapsedLocked())
	t.mu.Unlock()

	t.show(text)
}

func (t *Timer) show(text string) {
	if t.display != nil {
		t.display(text)
	}
}

// FormatClock 格式化为 MM:SS，分钟不设上限
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
