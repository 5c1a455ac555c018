package game

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/archive"
	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/eventlog"
	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"github.com/dneimke/simple-coding-sub000/internal/state"
	"github.com/dneimke/simple-coding-sub000/internal/timer"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TrackerOptions 比赛跟踪器选项
type TrackerOptions struct {
	Clock        clockwork.Clock
	TickInterval time.Duration
}

// Tracker 当前比赛
//
// 负责把状态机、计时器、事件序列、状态树和归档串起来。每次变更都会写入
// 状态树的 game 节点并持久化。状态树的订阅处理器不能回调 Tracker。
type Tracker struct {
	mu        sync.Mutex
	sm        *StateMachine
	timer     *timer.Timer
	store     *state.Store
	archive   *archive.Archive
	persister StatePersister
	clock     clockwork.Clock

	events    *eventlog.Log
	sessionID string
	startedAt time.Time

	log *zap.Logger
}

// NewTracker 创建比赛跟踪器
func NewTracker(store *state.Store, arch *archive.Archive, persister StatePersister, opts TrackerOptions) *Tracker {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if persister == nil {
		persister = NewMemoryStatePersister()
	}

	log := logger.GetModuleLogger(logger.ModuleGame)
	t := &Tracker{
		sm:        NewStateMachine(log),
		store:     store,
		archive:   arch,
		persister: persister,
		clock:     clock,
		events:    eventlog.NewLog(),
		log:       log,
	}
	t.timer = timer.New(clock, opts.TickInterval, t.onDisplay)
	t.sm.OnStateChange(func(from, to GameState, event string) {
		logger.LogGameEvent(event,
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	})
	return t
}

// onDisplay 计时器刷新显示
func (t *Tracker) onDisplay(text string) {
	t.store.Set(state.PathGame, map[string]interface{}{
		"display":   text,
		"elapsedMs": t.timer.ElapsedMs(),
	}, true)
}

// NewGame 开始新比赛
func (t *Tracker) NewGame(ctx context.Context) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sm.GetState() != StateIdle {
		return Session{}, apperrors.New(apperrors.ErrGameAlreadyStarted)
	}

	err := t.sm.Trigger(ctx, EventNewGame, func(ctx context.Context) error {
		t.events.Reset()
		t.sessionID = uuid.NewString()
		t.startedAt = t.clock.Now()
		t.timer.Reset()
		t.timer.Start()
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	t.log.Info("新比赛开始", zap.String("session_id", t.sessionID))
	t.commitLocked(ctx)
	return t.snapshotLocked(), nil
}

// Pause 暂停计时
func (t *Tracker) Pause(ctx context.Context) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.sm.GetState() {
	case StateIdle:
		return Session{}, apperrors.New(apperrors.ErrGameNotStarted)
	case StatePaused:
		return Session{}, apperrors.New(apperrors.ErrGameNotRunning, "已暂停")
	}

	err := t.sm.Trigger(ctx, EventPause, func(ctx context.Context) error {
		t.timer.Pause()
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	t.commitLocked(ctx)
	return t.snapshotLocked(), nil
}

// Resume 继续计时
func (t *Tracker) Resume(ctx context.Context) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.sm.GetState() {
	case StateIdle:
		return Session{}, apperrors.New(apperrors.ErrGameNotStarted)
	case StateRunning:
		return Session{}, apperrors.New(apperrors.ErrGameStateError, "计时已在运行")
	}

	err := t.sm.Trigger(ctx, EventResume, func(ctx context.Context) error {
		t.timer.Resume()
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	t.commitLocked(ctx)
	return t.snapshotLocked(), nil
}

// AddEvent 记录事件，比赛未在计时中时拒绝并返回 false
func (t *Tracker) AddEvent(ctx context.Context, name string, offsetMs int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.addLocked(ctx, name, offsetMs)
	return ok
}

// LogEvent 以计时器当前读数记录事件
func (t *Tracker) LogEvent(ctx context.Context, name string) (eventlog.Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(ctx, name, t.timer.ElapsedMs())
}

func (t *Tracker) addLocked(ctx context.Context, name string, offsetMs int64) (eventlog.Event, bool) {
	event := eventlog.Event{Name: strings.TrimSpace(name), OffsetMs: offsetMs}

	if t.sm.GetState() != StateRunning {
		t.log.Warn("比赛未在计时，忽略事件",
			zap.String("event", event.Name),
			zap.String("state", string(t.sm.GetState())),
		)
		return event, false
	}
	if !event.Valid() {
		t.log.Warn("事件数据无效", zap.String("event", event.Name), zap.Int64("offset_ms", offsetMs))
		return event, false
	}

	t.events.Add(event)
	t.log.Debug("记录事件", zap.String("event", event.Name), zap.Int64("offset_ms", offsetMs))
	t.commitLocked(ctx)
	return event, true
}

// Complete 结束比赛并归档，归档失败时保留当前比赛
func (t *Tracker) Complete(ctx context.Context, label *string) (archive.SavedGame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sm.GetState() == StateIdle {
		return archive.SavedGame{}, apperrors.New(apperrors.ErrGameNotStarted)
	}

	if label != nil {
		if trimmed := strings.TrimSpace(*label); trimmed != "" {
			label = archive.StringPtr(trimmed)
		} else {
			label = nil
		}
	}

	var saved archive.SavedGame
	err := t.sm.Trigger(ctx, EventComplete, func(ctx context.Context) error {
		saved = archive.SavedGame{
			Events:      t.events.Events(),
			ElapsedMs:   t.timer.ElapsedMs(),
			CompletedAt: t.clock.Now(),
			Label:       label,
		}
		if err := t.archive.Save(ctx, saved); err != nil {
			return err
		}
		t.resetLocked()
		return nil
	})
	if err != nil {
		t.log.Error("比赛归档失败", zap.Error(err))
		return archive.SavedGame{}, err
	}

	t.log.Info("比赛已归档",
		zap.Int("events", len(saved.Events)),
		zap.Int64("elapsed_ms", saved.ElapsedMs),
	)
	t.commitLocked(ctx)
	return saved, nil
}

// Clear 丢弃当前比赛
func (t *Tracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.sm.Trigger(ctx, EventClear, func(ctx context.Context) error {
		t.resetLocked()
		return nil
	})
	if err != nil {
		return err
	}
	t.commitLocked(ctx)
	return nil
}

func (t *Tracker) resetLocked() {
	t.timer.Reset()
	t.events.Reset()
	t.sessionID = ""
	t.startedAt = time.Time{}
}

// State 当前生命周期状态
func (t *Tracker) State() GameState {
	return t.sm.GetState()
}

// Snapshot 当前比赛快照，已用时间为实时值
func (t *Tracker) Snapshot() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Session {
	st := t.sm.GetState()
	elapsed := t.timer.Elapsed()
	s := Session{
		SessionID:   t.sessionID,
		State:       st,
		IsActive:    st != StateIdle,
		IsRunning:   st == StateRunning,
		ElapsedMs:   elapsed.Milliseconds(),
		Display:     timer.FormatClock(elapsed),
		Events:      t.events.Events(),
		ValidEvents: t.sm.GetValidEvents(),
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		s.StartedAt = &started
	}
	return s
}

// Views 当前事件序列的派生视图
func (t *Tracker) Views() eventlog.Views {
	t.mu.Lock()
	events := t.events.Events()
	t.mu.Unlock()
	return eventlog.RenderAll(events)
}

// restore 从持久化数据恢复当前比赛
func (t *Tracker) restore(ctx context.Context, data *SessionData) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sm.LoadState(data.State)
	t.events = eventlog.NewLog(data.Events...)
	t.sessionID = data.SessionID
	t.startedAt = data.StartedAt

	switch data.State {
	case StateIdle:
		t.timer.Reset()
	default:
		running := data.State == StateRunning
		t.timer.Restore(time.Duration(data.ElapsedMs)*time.Millisecond, running, data.Origin)
	}
	t.publishLocked()
}

// commitLocked 写入状态树并持久化
func (t *Tracker) commitLocked(ctx context.Context) {
	t.publishLocked()

	if t.sm.GetState() == StateIdle {
		if err := t.persister.Delete(ctx); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			t.log.Error("删除比赛状态失败", zap.Error(err))
		}
		return
	}
	if err := t.persister.Save(ctx, t.dataLocked()); err != nil {
		t.log.Error("保存比赛状态失败", zap.Error(err))
	}
}

func (t *Tracker) dataLocked() *SessionData {
	elapsed, _, origin := t.timer.Snapshot()
	return &SessionData{
		SessionID:  t.sessionID,
		State:      t.sm.GetState(),
		Events:     t.events.Events(),
		ElapsedMs:  elapsed.Milliseconds(),
		Origin:     origin,
		StartedAt:  t.startedAt,
		LastUpdate: t.clock.Now(),
	}
}

func (t *Tracker) publishLocked() {
	st := t.sm.GetState()
	elapsed := t.timer.Elapsed()
	events := t.events.Events()

	logged := make([]interface{}, len(events))
	for i, e := range events {
		logged[i] = map[string]interface{}{
			"name":     e.Name,
			"offsetMs": e.OffsetMs,
		}
	}

	t.store.Set(state.PathGame, map[string]interface{}{
		"isActive":     st != StateIdle,
		"isRunning":    st == StateRunning,
		"elapsedMs":    elapsed.Milliseconds(),
		"display":      timer.FormatClock(elapsed),
		"loggedEvents": logged,
	}, true)
}
