package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kelsos/safe-swap/internal/logger"
	"github.com/kelsos/safe-swap/internal/services"
)

// Stages shown for each command
var (
	RunStages = []services.Stage{
		services.StageConnect, services.StageDeployment, services.StageBalances, services.StageBatch,
		services.StageConfirm, services.StageQuote, services.StageOrder, services.StagePresign,
		services.StageStatus, services.StageComplete,
	}
	DepositStages = []services.Stage{
		services.StageConnect, services.StageDeployment, services.StageBalances, services.StageBatch,
		services.StageConfirm, services.StageComplete,
	}
)

// SwapMonitor shows workflow progress in a terminal UI. It is a services.Observer.
type SwapMonitor struct {
	title   string
	stages  []services.Stage
	program *tea.Program
	opts    []tea.ProgramOption
}

var _ services.Observer = (*SwapMonitor)(nil)

func NewSwapMonitor(title string, stages []services.Stage, opts ...tea.ProgramOption) *SwapMonitor {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &SwapMonitor{
		title:  title,
		stages: stages,
		opts:   opts,
	}
}

func (sm *SwapMonitor) Start() error {
	model := NewModel(sm.title, sm.stages)
	sm.program = tea.NewProgram(model, sm.opts...)

	return nil
}

func (sm *SwapMonitor) Stop() {
	if sm.program != nil {
		sm.program.Quit()
	}
}

func (sm *SwapMonitor) OnStage(stage services.Stage, message string) {
	if sm.program != nil {
		sm.program.Send(StageUpdate{
			Stage:   stage,
			Message: message,
		})
	}
}

func (sm *SwapMonitor) OnError(stage services.Stage, err error) {
	if sm.program != nil {
		sm.program.Send(StageUpdate{
			Stage: stage,
			Error: err,
		})
	}
}

func (sm *SwapMonitor) AddLog(message string) {
	if sm.program != nil {
		sm.program.Send(LogMessage{
			Message: message,
		})
	}
}

// Run executes work while the UI is shown and returns its error. Quitting the UI
// cancels the context given to work and waits for it to return.
func (sm *SwapMonitor) Run(ctx context.Context, work func(ctx context.Context) error) error {
	if sm.program == nil {
		if err := sm.Start(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := work(ctx)
		if err != nil {
			sm.AddLog(fmt.Sprintf("❌ Fatal error: %v", err))
		}
		sm.program.Send(Finished{Error: err})
		done <- err
		// Signal completion
		sm.Stop()
	}()

	if _, err := sm.program.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	cancel()
	err := <-done
	if err != nil {
		logger.Error("Workflow failed: %v", err)
	}
	return err
}
