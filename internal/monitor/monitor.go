package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/archive"
	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"github.com/dneimke/simple-coding-sub000/internal/state"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Options 监控选项
type Options struct {
	Interval time.Duration
	Clock    clockwork.Clock
}

// Monitor 定期检查存储用量，超过阈值时在状态树上打开告警标记
type Monitor struct {
	mu       sync.Mutex
	archive  *archive.Archive
	store    *state.Store
	interval time.Duration
	clock    clockwork.Clock
	sched    gocron.Scheduler
	last     archive.UsageReport
	log      *zap.Logger
}

// New 创建存储监控
func New(arch *archive.Archive, store *state.Store, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Monitor{
		archive:  arch,
		store:    store,
		interval: opts.Interval,
		clock:    opts.Clock,
		log:      logger.GetModuleLogger(logger.ModuleMonitor),
	}
}

// Start 启动定时检查，启动时立即执行一次
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sched != nil {
		return nil
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(m.clock))
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() {
			m.Check(context.Background())
		}),
		gocron.WithName("storage-usage"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}

	sched.Start()
	m.sched = sched
	m.log.Info("存储监控已启动", zap.Duration("interval", m.interval))
	return nil
}

// Stop 停止定时检查
func (m *Monitor) Stop() error {
	m.mu.Lock()
	sched := m.sched
	m.sched = nil
	m.mu.Unlock()

	if sched == nil {
		return nil
	}
	return sched.Shutdown()
}

// Check 计算存储用量并同步告警标记
func (m *Monitor) Check(ctx context.Context) archive.UsageReport {
	report := m.archive.Usage(ctx)

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()

	if report.Warning {
		m.log.Warn("存储用量接近上限，建议导出并删除旧比赛",
			zap.Int64("total_bytes", report.TotalBytes),
			zap.Int64("quota_bytes", report.QuotaBytes),
			zap.Float64("percent", report.Percent),
			zap.Int("games", report.GameCount),
		)
	}

	if m.store.GetBool(state.PathUIStorageWarning) != report.Warning {
		m.store.Set(state.PathUIStorageWarning, report.Warning, false)
	}
	return report
}

// Last 最近一次检查结果
func (m *Monitor) Last() archive.UsageReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
