package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kelsos/safe-swap/internal/services"
)

const maxLogs = 10

// StageState is how far a stage got
type StageState int

const (
	StatePending StageState = iota
	StateActive
	StateDone
	StateFailed
)

type stageStatus struct {
	stage   services.Stage
	state   StageState
	message string
	err     error
	started time.Time
}

// Model renders the progress of one workflow run
type Model struct {
	title    string
	stages   []*stageStatus
	logs     []string
	spinner  spinner.Model
	progress progress.Model
	width    int
	height   int
	quit     bool
	finished bool
	err      error
	now      func() time.Time
}

// StageUpdate reports that the workflow entered stage
type StageUpdate struct {
	Stage   services.Stage
	Message string
	Error   error
}

type LogMessage struct {
	Message string
}

// Finished is sent once the workflow returned
type Finished struct {
	Error error
}

// NewModel creates a model tracking stages in the order given
func NewModel(title string, stages []services.Stage) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	pr := progress.New(progress.WithDefaultGradient())

	m := Model{
		title:    title,
		logs:     []string{},
		spinner:  sp,
		progress: pr,
		width:    80,
		height:   24,
		now:      time.Now,
	}
	for _, stage := range stages {
		m.stages = append(m.stages, &stageStatus{stage: stage})
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.handleKeyMsg(msg) {
			m.quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m = m.handleWindowSizeMsg(msg)

	case StageUpdate:
		m = m.handleStageUpdate(msg)

	case LogMessage:
		m = m.handleLogMessage(msg)

	case Finished:
		m.finished = true
		m.err = msg.Error

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		if progressModel, ok := progressModel.(progress.Model); ok {
			m.progress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "ctrl+c":
		return true
	}
	return false
}

func (m Model) handleWindowSizeMsg(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.progress.Width = msg.Width - 40
	return m
}

func (m Model) find(stage services.Stage) int {
	for i, st := range m.stages {
		if st.stage == stage {
			return i
		}
	}
	return -1
}

// handleStageUpdate activates the stage and completes every stage before it.
// Stages the model does not track only show up in the logs.
func (m Model) handleStageUpdate(msg StageUpdate) Model {
	idx := m.find(msg.Stage)
	if idx < 0 {
		if msg.Error != nil {
			return m.handleLogMessage(LogMessage{Message: fmt.Sprintf("❌ %s: %v", msg.Stage, msg.Error)})
		}
		return m.handleLogMessage(LogMessage{Message: msg.Message})
	}

	stages := make([]*stageStatus, len(m.stages))
	for i, st := range m.stages {
		cp := *st
		stages[i] = &cp
	}
	m.stages = stages

	current := m.stages[idx]
	if msg.Error != nil {
		current.state = StateFailed
		current.err = msg.Error
		return m.handleLogMessage(LogMessage{Message: fmt.Sprintf("❌ %s: %v", msg.Stage, msg.Error)})
	}

	for _, st := range m.stages[:idx] {
		if st.state == StateActive || st.state == StatePending {
			st.state = StateDone
		}
	}
	if current.state != StateActive {
		current.started = m.now()
	}
	current.state = StateActive
	if msg.Stage == services.StageComplete {
		current.state = StateDone
	}
	current.message = msg.Message
	return m.handleLogMessage(LogMessage{Message: msg.Message})
}

func (m Model) handleLogMessage(msg LogMessage) Model {
	if msg.Message == "" {
		return m
	}
	m.logs = append(m.logs, fmt.Sprintf("[%s] %s",
		m.now().Format("15:04:05"), msg.Message))
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
	return m
}

// Progress is the share of tracked stages that are done
func (m Model) Progress() float64 {
	if len(m.stages) == 0 {
		return 0
	}
	done := 0
	for _, st := range m.stages {
		if st.state == StateDone {
			done++
		}
	}
	return float64(done) / float64(len(m.stages))
}

// State returns the state of stage, StatePending when it is not tracked
func (m Model) State(stage services.Stage) StageState {
	if idx := m.find(stage); idx >= 0 {
		return m.stages[idx].state
	}
	return StatePending
}

func (m Model) View() string {
	if m.quit {
		return "Shutting down...\n"
	}

	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	s.WriteString(headerStyle.Render("🔁 " + m.title))
	s.WriteString("\n\n")

	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	summary := fmt.Sprintf("%s %s", m.progress.ViewAs(m.Progress()), m.outcome())
	s.WriteString(summaryStyle.Render(summary))
	s.WriteString("\n\n")

	stageSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1).
		Width(m.width - 2)

	var stageSection strings.Builder
	stageSection.WriteString("📊 Stages\n")
	stageSection.WriteString(strings.Repeat("─", 60) + "\n")

	for _, st := range m.stages {
		line := fmt.Sprintf("%s %-11s", getStageIcon(st), st.stage)
		switch {
		case st.state == StateActive:
			line += " " + m.spinner.View()
			if !st.started.IsZero() {
				line += " " + m.now().Sub(st.started).Truncate(time.Second).String()
			}
		case st.err != nil:
			errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
			line += " " + errorStyle.Render(fmt.Sprintf("Error: %v", st.err))
		}
		if st.err == nil && st.message != "" {
			messageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
			line += " " + messageStyle.Render(truncate(st.message, m.width-30))
		}

		stageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(getStageColor(st.state)))
		stageSection.WriteString(stageStyle.Render(line) + "\n")
	}

	s.WriteString(stageSectionStyle.Render(stageSection.String()))
	s.WriteString("\n\n")

	logSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(m.width - 2).
		Height(8)

	var logSection strings.Builder
	logSection.WriteString("📝 Recent Logs\n")
	for _, log := range m.logs {
		logSection.WriteString(log + "\n")
	}

	s.WriteString(logSectionStyle.Render(logSection.String()))
	s.WriteString("\n\n")

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	footer := "Press 'q' to quit | Logs: logs/safe-swap_*.log"
	s.WriteString(footerStyle.Render(footer))

	return s.String()
}

func (m Model) outcome() string {
	switch {
	case !m.finished:
		return "⏳ running"
	case m.err != nil:
		return "❌ failed"
	default:
		return "✅ done"
	}
}

func getStageIcon(st *stageStatus) string {
	switch st.state {
	case StateDone:
		return "✅"
	case StateFailed:
		return "❌"
	case StatePending:
		return "⏸"
	}

	switch st.stage {
	case services.StageConnect, services.StageDeployment:
		return "🔌"
	case services.StageBalances, services.StageReport:
		return "📊"
	case services.StageBatch:
		return "📦"
	case services.StageConfirm, services.StageStatus:
		return "⏳"
	case services.StageQuote:
		return "💱"
	case services.StageOrder:
		return "📝"
	case services.StagePresign:
		return "🔐"
	default:
		return "🔄"
	}
}

func getStageColor(state StageState) string {
	switch state {
	case StatePending:
		return "244"
	case StateDone:
		return "82"
	case StateFailed:
		return "196"
	default:
		return "39"
	}
}

func truncate(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
