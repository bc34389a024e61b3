// Package watch is the Bubble Tea model behind jobwatch: a live view of one
// job fed by the reconciling watcher.
package watch

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sandeepprukmani-maker/jobstream/internal/client"
	"github.com/sandeepprukmani-maker/jobstream/internal/job"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	pendingGlyph = dimStyle.Render("·")
)

// Messages bridged from watcher callbacks.
type stepMsg struct{ step job.Step }
type updateMsg struct{ record *job.Record }
type completeMsg struct{ record *job.Record }
type stateMsg struct{ state client.State }
type errMsg struct{ err error }

// Model is the root jobwatch model.
type Model struct {
	jobID   string
	watcher *client.Watcher
	obs     *client.Observer
	events  chan tea.Msg
	ctx     context.Context
	cancel  context.CancelFunc

	connState client.State
	status    job.Status
	steps     []job.Step
	final     *job.Record
	lastErr   string
	width     int
}

// New wires the watcher's callbacks into the model's event channel. Start of
// the watcher happens in Init.
func New(obs *client.Observer, watcher *client.Watcher, jobID string) Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		jobID:   jobID,
		watcher: watcher,
		obs:     obs,
		events:  make(chan tea.Msg, 64),
		ctx:     ctx,
		cancel:  cancel,
		status:  job.Pending,
	}

	post := func(msg tea.Msg) {
		select {
		case m.events <- msg:
		default:
			// UI behind; drop rather than stall the watcher.
		}
	}
	watcher.OnStep(func(s job.Step) { post(stepMsg{step: s}) })
	watcher.OnUpdate(func(r *job.Record) { post(updateMsg{record: r}) })
	watcher.OnComplete(func(r *job.Record) { post(completeMsg{record: r}) })
	watcher.OnError(func(err error) { post(errMsg{err: err}) })
	obs.OnStateChange(func(s client.State) { post(stateMsg{state: s}) })

	return m
}

func (m Model) Init() tea.Cmd {
	m.watcher.Start(m.ctx)
	return m.nextEvent()
}

func (m Model) nextEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.watcher.Stop()
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "r":
			// Manual reconnect after give-up.
			if m.connState == client.StateGivenUp {
				m.obs.Connect()
			}
			return m, nil
		}
		return m, nil

	case stateMsg:
		m.connState = msg.state
		return m, m.nextEvent()

	case stepMsg:
		m.status = job.Running
		m.steps = append(m.steps, msg.step)
		return m, m.nextEvent()

	case updateMsg:
		m.status = msg.record.Status
		if len(msg.record.Steps) > len(m.steps) {
			m.steps = msg.record.Steps
		}
		return m, m.nextEvent()

	case completeMsg:
		m.final = msg.record
		m.status = msg.record.Status
		if len(msg.record.Steps) > len(m.steps) {
			m.steps = msg.record.Steps
		}
		return m, m.nextEvent()

	case errMsg:
		m.lastErr = msg.err.Error()
		return m, m.nextEvent()
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("jobwatch "+m.jobID) + "  " + m.connIndicator() + "\n\n")

	for _, s := range m.steps {
		glyph := okStyle.Render("✓")
		if s.Status == job.Failed {
			glyph = failStyle.Render("✗")
		}
		line := fmt.Sprintf("  %s %s", glyph, s.Description)
		if s.DurationMs > 0 {
			line += dimStyle.Render(fmt.Sprintf("  (%dms)", s.DurationMs))
		}
		b.WriteString(line + "\n")
	}
	if len(m.steps) == 0 && m.final == nil {
		b.WriteString("  " + pendingGlyph + dimStyle.Render(" waiting for steps...") + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.final != nil && m.final.Status == job.Completed:
		b.WriteString(okStyle.Render("completed"))
		if m.final.Result != "" {
			b.WriteString(dimStyle.Render("  " + m.final.Result))
		}
	case m.final != nil:
		b.WriteString(failStyle.Render("failed"))
		if m.final.Error != "" {
			b.WriteString(dimStyle.Render("  " + m.final.Error))
		}
	default:
		b.WriteString(dimStyle.Render(m.status.String()))
	}
	b.WriteString("\n")

	if m.lastErr != "" {
		b.WriteString(warnStyle.Render("last error: "+m.lastErr) + "\n")
	}
	b.WriteString(dimStyle.Render("q quit") + "\n")

	return b.String()
}

func (m Model) connIndicator() string {
	switch m.connState {
	case client.StateOpen:
		return okStyle.Render("● connected")
	case client.StateConnecting:
		return warnStyle.Render("◌ connecting")
	case client.StateRetryWait:
		return warnStyle.Render("◌ reconnecting")
	case client.StateGivenUp:
		return failStyle.Render("✗ gave up (r to retry, polling continues)")
	default:
		return dimStyle.Render("○ idle")
	}
}
