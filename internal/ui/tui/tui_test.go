package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/mnemo/internal/memory"
	"github.com/felixgeelhaar/mnemo/internal/telemetry"
)

func sampleStats() memory.Stats {
	return memory.Stats{
		TotalItems:       12,
		LiveItems:        10,
		ExpiredItems:     2,
		Age:              memory.AgeBuckets{LastHour: 4, LastDay: 3, LastWeek: 2, Older: 1},
		AvgContentLength: 42.5,
		ApproxBytes:      2048,
		Dirty:            true,
		Strategy:         memory.StrategyLRU,
		MaxItems:         100,
		Dimension:        384,
	}
}

func ready(t *testing.T) Model {
	t.Helper()
	m := NewModel("mnemo", sampleStats, time.Second)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return updated.(Model)
}

func TestModel_ViewBeforeReady(t *testing.T) {
	m := NewModel("mnemo", sampleStats, time.Second)
	if !strings.Contains(m.View(), "Initializing") {
		t.Errorf("expected initializing view, got %q", m.View())
	}
}

func TestModel_Stats(t *testing.T) {
	m := ready(t)
	updated, _ := m.Update(StatsMsg(sampleStats()))
	view := updated.(Model).View()

	for _, want := range []string{"10 live / 12 total", "<1h 4", "older 1", "42.5 chars", "2.0 kB", "never", "unsaved changes", "lru"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q, got:\n%s", want, view)
		}
	}
}

func TestModel_Refresh(t *testing.T) {
	m := ready(t)
	msg := m.refresh()
	st, ok := msg.(StatsMsg)
	if !ok {
		t.Fatalf("expected StatsMsg, got %T", msg)
	}
	if st.LiveItems != 10 {
		t.Errorf("expected 10 live items, got %d", st.LiveItems)
	}

	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("expected tick to schedule a refresh")
	}
}

func TestModel_Events(t *testing.T) {
	m := ready(t)
	ev := telemetry.Event{
		Type:      telemetry.EventEvicted,
		Timestamp: time.Date(2025, 1, 1, 10, 11, 12, 0, time.UTC),
		Data:      map[string]interface{}{"count": 3, "strategy": "lru"},
	}
	updated, _ := m.Update(EventMsg(ev))
	um := updated.(Model)

	if len(um.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(um.Events))
	}
	if um.Events[0] != "10:11:12 evicted   count=3 strategy=lru" {
		t.Errorf("unexpected event line %q", um.Events[0])
	}
	if !strings.Contains(um.View(), "evicted") {
		t.Error("expected event in view")
	}
}

func TestModel_EventLogIsBounded(t *testing.T) {
	m := ready(t)
	var model tea.Model = m
	for i := 0; i < maxEvents+25; i++ {
		model, _ = model.Update(EventMsg(telemetry.Event{Type: telemetry.EventAdded}))
	}
	if n := len(model.(Model).Events); n != maxEvents {
		t.Errorf("expected %d events, got %d", maxEvents, n)
	}
}

func TestModel_Quit(t *testing.T) {
	m := ready(t)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !updated.(Model).Quitting {
		t.Error("expected quitting state")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
