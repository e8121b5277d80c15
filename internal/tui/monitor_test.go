package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/safe-swap/internal/services"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model
}

func TestStageUpdateCompletesEarlierStages(t *testing.T) {
	m := NewModel("Safe swap", RunStages)

	m = update(t, m, StageUpdate{Stage: services.StageConnect, Message: "Connecting"})
	assert.Equal(t, StateActive, m.State(services.StageConnect))
	assert.Equal(t, StatePending, m.State(services.StageBatch))

	m = update(t, m, StageUpdate{Stage: services.StageBatch, Message: "Wrapping"})
	assert.Equal(t, StateDone, m.State(services.StageConnect))
	assert.Equal(t, StateDone, m.State(services.StageBalances))
	assert.Equal(t, StateActive, m.State(services.StageBatch))
	assert.InDelta(t, 0.3, m.Progress(), 1e-9)

	m = update(t, m, StageUpdate{Stage: services.StageComplete, Message: "Done"})
	assert.Equal(t, 1.0, m.Progress())
}

func TestStageErrorMarksFailure(t *testing.T) {
	m := NewModel("Safe swap", DepositStages)

	m = update(t, m, StageUpdate{Stage: services.StageConfirm, Message: "Waiting"})
	m = update(t, m, StageUpdate{Stage: services.StageConfirm, Error: errors.New("transaction reverted")})

	assert.Equal(t, StateFailed, m.State(services.StageConfirm))
	assert.Equal(t, StatePending, m.State(services.StageComplete))
	assert.Contains(t, m.View(), "transaction reverted")
}

func TestUpdateDoesNotMutatePreviousModel(t *testing.T) {
	before := NewModel("Safe swap", RunStages)
	after := update(t, before, StageUpdate{Stage: services.StageQuote, Message: "Quoting"})

	assert.Equal(t, StatePending, before.State(services.StageQuote))
	assert.Equal(t, StateActive, after.State(services.StageQuote))
}

func TestUntrackedStagesOnlyLog(t *testing.T) {
	m := NewModel("Safe swap", DepositStages)

	m = update(t, m, StageUpdate{Stage: services.StageQuote, Message: "Quoting"})

	assert.Zero(t, m.Progress())
	require.Len(t, m.logs, 1)
	assert.Contains(t, m.logs[0], "Quoting")
}

func TestLogsAreCapped(t *testing.T) {
	m := NewModel("Safe swap", RunStages)
	for i := 0; i < 25; i++ {
		m = update(t, m, LogMessage{Message: fmt.Sprintf("line %d", i)})
	}

	require.Len(t, m.logs, maxLogs)
	assert.Contains(t, m.logs[maxLogs-1], "line 24")
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		m := NewModel("Safe swap", RunStages)
		next, cmd := m.Update(key)
		require.NotNil(t, cmd)
		assert.Equal(t, "Shutting down...\n", next.View())
	}
}

func TestFinishedOutcome(t *testing.T) {
	m := NewModel("Safe swap", RunStages)
	assert.Contains(t, m.View(), "running")

	m = update(t, m, Finished{})
	assert.Contains(t, m.View(), "done")

	m = update(t, m, Finished{Error: errors.New("boom")})
	assert.Contains(t, m.View(), "failed")
}

func TestSwapMonitorRunReturnsWorkError(t *testing.T) {
	sm := NewSwapMonitor("Safe swap", RunStages,
		tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutRenderer())

	want := errors.New("order rejected")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sm.Run(ctx, func(ctx context.Context) error {
		sm.OnStage(services.StageConnect, "Connecting")
		sm.OnError(services.StageOrder, want)
		return want
	})

	assert.ErrorIs(t, err, want)
}
