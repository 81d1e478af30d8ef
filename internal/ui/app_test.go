package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/skywatch/internal/alerts"
	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/chat"
	"github.com/abelbrown/skywatch/internal/dashboard"
	"github.com/abelbrown/skywatch/internal/feed"
	"github.com/abelbrown/skywatch/internal/store"
)

// mockCommands records every action the UI issues.
type mockCommands struct {
	mu       sync.Mutex
	filters  []feed.FilterState
	marked   []string
	sent     []string
	loadMore int
	resets   int
	sendErr  error
}

func (m *mockCommands) SetFilter(fs feed.FilterState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, fs)
	return nil
}

func (m *mockCommands) LoadMore() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadMore++
	return nil
}

func (m *mockCommands) RefreshFeed() error   { return nil }
func (m *mockCommands) RefreshAlerts() error { return nil }

func (m *mockCommands) MarkSeen(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, id)
	return nil
}

func (m *mockCommands) Send(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return m.sendErr
}

func (m *mockCommands) ResetChat() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

func (m *mockCommands) Track(n int) ([]store.Position, error) {
	return []store.Position{{Latitude: 1}}, nil
}

func (m *mockCommands) SourceHealth() ([]store.Health, error) {
	return []store.Health{{SourceID: "iss", Ticks: 1}}, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds a key and runs the resulting command, if any, returning the
// message it produced.
func press(t *testing.T, app App, k string) (App, tea.Msg) {
	t.Helper()
	model, cmd := app.Update(key(k))
	app = model.(App)
	if cmd == nil {
		return app, nil
	}
	return app, cmd()
}

func newTestApp(m *mockCommands) App {
	app := NewApp(m, feed.FilterState{Scope: api.ScopeBoth}, []string{"galaxies", "nebulae"})
	model, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return model.(App)
}

func TestAppInit(t *testing.T) {
	app := NewApp(&mockCommands{}, feed.FilterState{}, nil)
	if app.Init() == nil {
		t.Fatal("Init should return a command")
	}
}

func TestAppViewBeforeResize(t *testing.T) {
	app := NewApp(nil, feed.FilterState{}, nil)
	if got := app.View(); got != "Loading..." {
		t.Errorf("View before resize = %q", got)
	}
}

func TestPaneSwitching(t *testing.T) {
	app := newTestApp(&mockCommands{})

	app, _ = press(t, app, "tab")
	if app.Pane() != PaneAlerts {
		t.Errorf("tab should move to alerts, got %v", app.Pane())
	}
	app, msg := press(t, app, "4")
	if app.Pane() != PaneSources {
		t.Errorf("4 should move to sources, got %v", app.Pane())
	}
	loaded, ok := msg.(HistoryLoaded)
	if !ok || len(loaded.Track) != 1 || len(loaded.Health) != 1 {
		t.Errorf("entering sources should load history, got %#v", msg)
	}
}

func TestFeedKeysIssueFilterCommands(t *testing.T) {
	m := &mockCommands{}
	app := newTestApp(m)

	app, _ = press(t, app, "c")
	if app.Filter().Category != "galaxies" {
		t.Errorf("c should pick the next category, got %q", app.Filter().Category)
	}
	app, _ = press(t, app, "s")
	app, _ = press(t, app, "m")

	m.mu.Lock()
	defer m.mu.Unlock()
	want := []feed.FilterState{
		{Category: "galaxies", Scope: api.ScopeBoth},
		{Category: "galaxies", Scope: api.ScopeJWST},
	}
	if len(m.filters) != 2 || m.filters[0] != want[0] || m.filters[1] != want[1] {
		t.Errorf("filters = %+v, want %+v", m.filters, want)
	}
	if m.loadMore != 1 {
		t.Errorf("m should load more once, got %d", m.loadMore)
	}
}

func TestCategoryCycleWraps(t *testing.T) {
	app := newTestApp(&mockCommands{})
	for i := 0; i < 3; i++ {
		app, _ = press(t, app, "c")
	}
	if app.Filter().Category != "" {
		t.Errorf("category should wrap back to all, got %q", app.Filter().Category)
	}
}

func TestFeedCursorClampsOnNewSnapshot(t *testing.T) {
	app := newTestApp(&mockCommands{})
	items := makeObservations(5)

	model, _ := app.Update(FeedChanged{Feed: feed.MergedFeed{Items: items}})
	app = model.(App)
	for i := 0; i < 4; i++ {
		app, _ = press(t, app, "j")
	}
	model, _ = app.Update(FeedChanged{Feed: feed.MergedFeed{Items: items[:2]}})
	app = model.(App)
	if app.feedCursor != 1 {
		t.Errorf("cursor should clamp to 1, got %d", app.feedCursor)
	}
}

func TestMarkSeenFromAlertsPane(t *testing.T) {
	m := &mockCommands{}
	app := newTestApp(m)
	app, _ = press(t, app, "2")

	model, _ := app.Update(AlertsChanged{Alerts: []alerts.AlertRecord{
		{ID: "a1", Title: "Storm watch", Priority: alerts.High},
		{ID: "a2", Title: "Close approach", Priority: alerts.Medium},
	}})
	app = model.(App)

	app, _ = press(t, app, "down")
	_, msg := press(t, app, "enter")
	if done, ok := msg.(CommandDone); !ok || done.Err != nil {
		t.Fatalf("expected successful CommandDone, got %#v", msg)
	}
	if len(m.marked) != 1 || m.marked[0] != "a2" {
		t.Errorf("marked = %v, want [a2]", m.marked)
	}
}

func TestChatInputSendsAndClears(t *testing.T) {
	m := &mockCommands{}
	app := newTestApp(m)
	app, _ = press(t, app, "3")
	app, _ = press(t, app, "i")
	if !app.input.Focused() {
		t.Fatal("i should focus the input")
	}

	for _, r := range "hello" {
		app, _ = press(t, app, string(r))
	}
	app, msg := press(t, app, "enter")
	if _, ok := msg.(CommandDone); !ok {
		t.Fatalf("enter should send, got %#v", msg)
	}
	if len(m.sent) != 1 || m.sent[0] != "hello" {
		t.Errorf("sent = %v", m.sent)
	}
	if app.input.Value() != "" {
		t.Errorf("input should clear after send, got %q", app.input.Value())
	}

	// q types into the input instead of quitting while focused.
	app, _ = press(t, app, "q")
	if app.input.Value() != "q" {
		t.Errorf("q should be typed, got %q", app.input.Value())
	}
	app, _ = press(t, app, "esc")
	if app.input.Focused() {
		t.Error("esc should blur the input")
	}
}

func TestChatInputIgnoredWhileBusy(t *testing.T) {
	m := &mockCommands{}
	app := newTestApp(m)
	app, _ = press(t, app, "3")

	model, _ := app.Update(SessionChanged{Session: chat.SessionSnapshot{
		Turns: []chat.Turn{
			{Role: chat.User, Content: "first", Status: chat.Fulfilled},
			{Role: chat.Assistant, Status: chat.Pending},
		},
		PendingIndex: 1,
	}})
	app = model.(App)
	app, _ = press(t, app, "i")
	app, _ = press(t, app, "x")
	_, msg := press(t, app, "enter")
	if msg != nil || len(m.sent) != 0 {
		t.Errorf("send while busy must not reach the session, got %#v", msg)
	}
}

func TestSuggestionShortcut(t *testing.T) {
	m := &mockCommands{}
	app := newTestApp(m)
	app, _ = press(t, app, "3")

	model, _ := app.Update(SessionChanged{Session: chat.SessionSnapshot{
		PendingIndex: -1,
		Suggestions:  []string{"What is JWST observing?", "Any NEOs?"},
	}})
	app = model.(App)
	press(t, app, "6")
	if len(m.sent) != 1 || m.sent[0] != "Any NEOs?" {
		t.Errorf("sent = %v, want the second suggestion", m.sent)
	}
}

func TestCommandErrorShowsAndClears(t *testing.T) {
	app := newTestApp(&mockCommands{})
	model, _ := app.Update(CommandDone{Action: "send", Err: errors.New("chat: busy")})
	app = model.(App)
	if !strings.Contains(app.View(), "send: chat: busy") {
		t.Error("error bar should show the failed action")
	}
	app, _ = press(t, app, "j")
	if app.err != nil {
		t.Error("any key should dismiss the error")
	}
}

func TestViewShowsTelemetrySummary(t *testing.T) {
	app := newTestApp(&mockCommands{})
	model, _ := app.Update(TelemetryChanged{Telemetry: dashboard.Telemetry{
		ISS:       &api.ISSPosition{Latitude: 12.3, Longitude: 45.6, Altitude: 420},
		JWST:      &api.TelescopeStatus{CurrentTarget: "NGC 628"},
		Analytics: &api.AnalyticsOverview{ThreatLevel: "low"},
		Sources:   []dashboard.SourceStatus{{ID: "iss", Stale: true}},
	}})
	app = model.(App)

	view := app.View()
	for _, want := range []string{"ISS 12.3°, 45.6°", "NGC 628", "threat low", "1 stale", "Observations"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestQuit(t *testing.T) {
	app := newTestApp(&mockCommands{})
	_, cmd := app.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestLoadingFeedShowsPendingFilter(t *testing.T) {
	app := newTestApp(&mockCommands{})
	model, _ := app.Update(FeedChanged{Feed: feed.MergedFeed{
		Filter:        feed.FilterState{Category: "galaxies", Scope: api.ScopeBoth},
		Loading:       true,
		PendingFilter: feed.FilterState{Category: "nebulae", Scope: api.ScopeBoth},
	}})
	app = model.(App)
	if app.Filter().Category != "nebulae" {
		t.Errorf("filter while loading = %q, want the pending one", app.Filter().Category)
	}
}
