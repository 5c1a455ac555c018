package game

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStateMachineLifecycle(t *testing.T) {
	sm := NewStateMachine(zap.NewNop())
	ctx := context.Background()
	assert.Equal(t, StateIdle, sm.GetState())

	var changes []string
	sm.OnStateChange(func(from, to GameState, event string) {
		changes = append(changes, string(from)+">"+string(to))
	})

	require.NoError(t, sm.Trigger(ctx, EventNewGame, nil))
	require.NoError(t, sm.Trigger(ctx, EventPause, nil))
	require.NoError(t, sm.Trigger(ctx, EventResume, nil))
	require.NoError(t, sm.Trigger(ctx, EventComplete, nil))

	assert.Equal(t, StateIdle, sm.GetState())
	assert.Equal(t, []string{"idle>running", "running>paused", "paused>running", "running>idle"}, changes)
}

func TestStateMachineInvalidTransition(t *testing.T) {
	sm := NewStateMachine(zap.NewNop())
	ctx := context.Background()

	err := sm.Trigger(ctx, EventPause, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrGameStateError))
	assert.Equal(t, StateIdle, sm.GetState())

	require.NoError(t, sm.Trigger(ctx, EventNewGame, nil))
	assert.Error(t, sm.Trigger(ctx, EventNewGame, nil))
	assert.Error(t, sm.Trigger(ctx, EventResume, nil))
}

func TestStateMachineActionFailureKeepsState(t *testing.T) {
	sm := NewStateMachine(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, sm.Trigger(ctx, EventNewGame, nil))

	boom := errors.New("boom")
	err := sm.Trigger(ctx, EventComplete, func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateRunning, sm.GetState())
}

func TestStateMachineValidEvents(t *testing.T) {
	sm := NewStateMachine(zap.NewNop())
	assert.Equal(t, []string{EventClear, EventNewGame}, sm.GetValidEvents())
	assert.True(t, sm.CanTransition(EventNewGame))
	assert.False(t, sm.CanTransition(EventComplete))

	sm.LoadState(StatePaused)
	assert.Equal(t, []string{EventClear, EventComplete, EventResume}, sm.GetValidEvents())

	sm.Reset()
	assert.Equal(t, StateIdle, sm.GetState())
}
