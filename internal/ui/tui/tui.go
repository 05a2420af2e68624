// Package tui renders a live dashboard of store statistics and events.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/felixgeelhaar/mnemo/internal/memory"
	"github.com/felixgeelhaar/mnemo/internal/telemetry"
)

// maxEvents bounds the event log kept in memory.
const maxEvents = 200

// Dashboard forwards store events into a running program.
type Dashboard struct {
	program *tea.Program
}

func NewDashboard(p *tea.Program) *Dashboard {
	return &Dashboard{program: p}
}

// Event is a telemetry handler.
func (d *Dashboard) Event(e telemetry.Event) {
	d.program.Send(EventMsg(e))
}

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575"))

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFAA00"))

	labelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Width(16)
)

type (
	EventMsg telemetry.Event
	StatsMsg memory.Stats
	tickMsg  time.Time
)

type Model struct {
	Title    string
	Stats    memory.Stats
	Events   []string
	Progress progress.Model
	Viewport viewport.Model
	Quitting bool
	Ready    bool
	Width    int
	Height   int

	source   func() memory.Stats
	interval time.Duration
	now      func() time.Time
}

// NewModel polls source every interval.
func NewModel(title string, source func() memory.Stats, interval time.Duration) Model {
	return Model{
		Title:    title,
		Progress: progress.New(progress.WithDefaultGradient()),
		source:   source,
		interval: interval,
		now:      time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh, m.tick())
}

func (m Model) refresh() tea.Msg {
	return StatsMsg(m.source())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-14)
			m.Viewport.SetContent(strings.Join(m.Events, "\n"))
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - 14
		}

	case tickMsg:
		cmds = append(cmds, m.refresh, m.tick())

	case StatsMsg:
		m.Stats = memory.Stats(msg)

	case EventMsg:
		m.Events = append(m.Events, formatEvent(telemetry.Event(msg)))
		if len(m.Events) > maxEvents {
			m.Events = m.Events[len(m.Events)-maxEvents:]
		}
		m.Viewport.SetContent(strings.Join(m.Events, "\n"))
		m.Viewport.GotoBottom()
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	st := m.Stats
	var b strings.Builder
	b.WriteString(titleStyle.Render(" " + m.Title + " "))
	b.WriteString(infoStyle.Render(fmt.Sprintf(" %s, max %d ", st.Strategy, st.MaxItems)))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("items", fmt.Sprintf("%d live / %d total", st.LiveItems, st.TotalItems))
	expired := fmt.Sprintf("%d", st.ExpiredItems)
	if st.ExpiredItems > 0 {
		expired = warnStyle.Render(expired)
	}
	row("expired", expired)
	row("age", fmt.Sprintf("<1h %d  <24h %d  <7d %d  older %d", st.Age.LastHour, st.Age.LastDay, st.Age.LastWeek, st.Age.Older))
	row("avg length", fmt.Sprintf("%.1f chars", st.AvgContentLength))
	row("footprint", humanize.Bytes(uint64(st.ApproxBytes)))
	row("persisted", m.persistedLine())

	fill := 0.0
	if st.MaxItems > 0 {
		fill = float64(st.LiveItems) / float64(st.MaxItems)
	}
	b.WriteString("\n" + m.Progress.ViewAs(fill) + "\n\n")
	b.WriteString(m.Viewport.View())

	if m.Quitting {
		b.WriteString("\n  Quitting...\n")
	}
	return b.String()
}

func (m Model) persistedLine() string {
	last := "never"
	if !m.Stats.LastPersisted.IsZero() {
		last = humanize.RelTime(m.Stats.LastPersisted, m.now(), "ago", "from now")
	}
	if m.Stats.Dirty {
		return last + warnStyle.Render(" (unsaved changes)")
	}
	return last
}

func formatEvent(e telemetry.Event) string {
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Data[k]))
	}
	return fmt.Sprintf("%s %-9s %s", e.Timestamp.Format("15:04:05"), e.Type, strings.Join(parts, " "))
}
