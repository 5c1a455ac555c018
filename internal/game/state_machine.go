package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"go.uber.org/zap"
)

// GameState 比赛状态
type GameState string

const (
	StateIdle    GameState = "idle"    // 没有进行中的比赛
	StateRunning GameState = "running" // 计时中
	StatePaused  GameState = "paused"  // 已暂停
)

// 状态机事件
const (
	EventNewGame  = "new_game"
	EventPause    = "pause"
	EventResume   = "resume"
	EventComplete = "complete"
	EventClear    = "clear"
)

// StateTransition 状态转换定义
type StateTransition struct {
	From   GameState
	Event  string
	To     GameState
	Action func(ctx context.Context) error
}

// StateMachine 比赛生命周期状态机
type StateMachine struct {
	mu           sync.RWMutex
	currentState GameState
	transitions  map[string]StateTransition
	lastUpdate   time.Time
	logger       *zap.Logger

	onStateChange func(from, to GameState, event string)
}

// NewStateMachine 创建状态机
func NewStateMachine(logger *zap.Logger) *StateMachine {
	sm := &StateMachine{
		currentState: StateIdle,
		transitions:  make(map[string]StateTransition),
		lastUpdate:   time.Now(),
		logger:       logger,
	}
	sm.initTransitions()
	return sm
}

// initTransitions 初始化状态转换规则
func (sm *StateMachine) initTransitions() {
	// 待机 -> 计时（新比赛）
	sm.addTransition(StateTransition{From: StateIdle, Event: EventNewGame, To: StateRunning})

	// 计时 <-> 暂停
	sm.addTransition(StateTransition{From: StateRunning, Event: EventPause, To: StatePaused})
	sm.addTransition(StateTransition{From: StatePaused, Event: EventResume, To: StateRunning})

	// 计时/暂停 -> 待机（完成比赛）
	sm.addTransition(StateTransition{From: StateRunning, Event: EventComplete, To: StateIdle})
	sm.addTransition(StateTransition{From: StatePaused, Event: EventComplete, To: StateIdle})

	// 任何状态 -> 待机（清除）
	for _, state := range []GameState{StateIdle, StateRunning, StatePaused} {
		sm.addTransition(StateTransition{From: state, Event: EventClear, To: StateIdle})
	}
}

// addTransition 添加状态转换
func (sm *StateMachine) addTransition(transition StateTransition) {
	sm.transitions[sm.transitionKey(transition.From, transition.Event)] = transition
}

// transitionKey 生成转换键
func (sm *StateMachine) transitionKey(state GameState, event string) string {
	return fmt.Sprintf("%s:%s", state, event)
}

// Trigger 触发事件，action 在状态变更前执行，失败时保持原状态
func (sm *StateMachine) Trigger(ctx context.Context, event string, action func(ctx context.Context) error) error {
	sm.mu.Lock()

	transition, exists := sm.transitions[sm.transitionKey(sm.currentState, event)]
	if !exists {
		state := sm.currentState
		sm.mu.Unlock()
		return apperrors.Newf(apperrors.ErrGameStateError, "状态=%s, 事件=%s", state, event)
	}

	if action != nil {
		if err := action(ctx); err != nil {
			sm.mu.Unlock()
			return err
		}
	}

	oldState := sm.currentState
	sm.currentState = transition.To
	sm.lastUpdate = time.Now()
	callback := sm.onStateChange
	sm.mu.Unlock()

	sm.logger.Info("状态转换",
		zap.String("from", string(oldState)),
		zap.String("to", string(transition.To)),
		zap.String("event", event))

	if callback != nil {
		callback(oldState, transition.To, event)
	}
	return nil
}

// GetState 获取当前状态
func (sm *StateMachine) GetState() GameState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// LastUpdate 最后一次状态变更时间
func (sm *StateMachine) LastUpdate() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastUpdate
}

// OnStateChange 设置状态变更回调
func (sm *StateMachine) OnStateChange(fn func(from, to GameState, event string)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onStateChange = fn
}

// CanTransition 检查是否可以转换
func (sm *StateMachine) CanTransition(event string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, exists := sm.transitions[sm.transitionKey(sm.currentState, event)]
	return exists
}

// GetValidEvents 获取当前状态下的有效事件（按名称排序）
func (sm *StateMachine) GetValidEvents() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var events []string
	for _, t := range sm.transitions {
		if t.From == sm.currentState {
			events = append(events, t.Event)
		}
	}
	sort.Strings(events)
	return events
}

// LoadState 直接设置状态（用于恢复）
func (sm *StateMachine) LoadState(state GameState) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.currentState = state
	sm.lastUpdate = time.Now()
}

// Reset 重置到待机
func (sm *StateMachine) Reset() {
	sm.LoadState(StateIdle)
}
