package game

import (
	"context"
	"time"

	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// RecoveryManager 启动时恢复未结束的比赛
type RecoveryManager struct {
	logger    *zap.Logger
	persister StatePersister
	timeout   time.Duration // 超过该时长未更新的比赛直接丢弃
	clock     clockwork.Clock
}

// NewRecoveryManager 创建恢复管理器
func NewRecoveryManager(logger *zap.Logger, persister StatePersister, timeout time.Duration, clock clockwork.Clock) *RecoveryManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RecoveryManager{
		logger:    logger,
		persister: persister,
		timeout:   timeout,
		clock:     clock,
	}
}

// Recover 恢复持久化的比赛到 tracker，返回恢复后的状态
//
// 没有持久化数据时返回待机状态且不报错；数据超时返回 ErrTimeout。
func (rm *RecoveryManager) Recover(ctx context.Context, tracker *Tracker) (GameState, error) {
	data, err := rm.persister.Load(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return StateIdle, nil
		}
		rm.logger.Error("加载比赛状态失败", zap.Error(err))
		return StateIdle, apperrors.Wrap(err, apperrors.ErrStorageRead, "加载比赛状态")
	}

	// 检查是否超时
	if rm.timeout > 0 && rm.clock.Since(data.LastUpdate) > rm.timeout {
		rm.logger.Warn("比赛已超时，丢弃",
			zap.String("session_id", data.SessionID),
			zap.Time("last_update", data.LastUpdate),
			zap.Duration("timeout", rm.timeout))

		if err := rm.persister.Delete(ctx); err != nil {
			rm.logger.Error("删除超时比赛失败", zap.Error(err))
		}
		return StateIdle, apperrors.New(apperrors.ErrTimeout, data.SessionID)
	}

	// 根据状态决定恢复策略
	strategy := rm.getRecoveryStrategy(data.State)
	if err := strategy(ctx, tracker, data); err != nil {
		return StateIdle, err
	}

	st := tracker.State()
	rm.logger.Info("比赛恢复完成",
		zap.String("session_id", data.SessionID),
		zap.String("state", string(st)),
		zap.Int("events", len(data.Events)))
	return st, nil
}

// getRecoveryStrategy 根据状态获取恢复策略
func (rm *RecoveryManager) getRecoveryStrategy(st GameState) func(context.Context, *Tracker, *SessionData) error {
	strategies := map[GameState]func(context.Context, *Tracker, *SessionData) error{
		StateIdle:    rm.recoverIdle,
		StateRunning: rm.recoverRunning,
		StatePaused:  rm.recoverPaused,
	}

	if strategy, exists := strategies[st]; exists {
		return strategy
	}

	// 默认策略：重置到待机状态
	return rm.recoverToIdle
}

// recoverIdle 待机状态没有需要恢复的内容
func (rm *RecoveryManager) recoverIdle(ctx context.Context, tracker *Tracker, data *SessionData) error {
	return rm.persister.Delete(ctx)
}

// recoverRunning 计时中的比赛从保存的起点继续计时
func (rm *RecoveryManager) recoverRunning(ctx context.Context, tracker *Tracker, data *SessionData) error {
	if data.Origin.IsZero() {
		rm.logger.Warn("计时起点缺失，从当前时间继续",
			zap.String("session_id", data.SessionID))
	}
	tracker.restore(ctx, data)
	return nil
}

// recoverPaused 恢复暂停状态
func (rm *RecoveryManager) recoverPaused(ctx context.Context, tracker *Tracker, data *SessionData) error {
	tracker.restore(ctx, data)
	return nil
}

// recoverToIdle 默认恢复策略：丢弃数据并保持待机
func (rm *RecoveryManager) recoverToIdle(ctx context.Context, tracker *Tracker, data *SessionData) error {
	rm.logger.Warn("未知的比赛状态，重置到待机",
		zap.String("session_id", data.SessionID),
		zap.String("state", string(data.State)))

	return rm.persister.Delete(ctx)
}
