package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/skywatch/internal/alerts"
	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/chat"
	"github.com/abelbrown/skywatch/internal/dashboard"
	"github.com/abelbrown/skywatch/internal/feed"
	"github.com/abelbrown/skywatch/internal/store"
)

// commandTimeout bounds how long a user action waits for the loop.
const commandTimeout = 5 * time.Second

// trackLength is how many ISS positions the sources pane shows.
const trackLength = 20

// Commands is every user action the UI can take. All methods must be safe
// to call off the loop; *dashboard.Dashboard implements it.
type Commands interface {
	SetFilter(fs feed.FilterState) error
	LoadMore() error
	RefreshFeed() error
	RefreshAlerts() error
	MarkSeen(ctx context.Context, id string) error
	Send(ctx context.Context, text string) error
	ResetChat() error
	Track(n int) ([]store.Position, error)
	SourceHealth() ([]store.Health, error)
}

// Pane is one tab of the dashboard.
type Pane int

const (
	PaneFeed Pane = iota
	PaneAlerts
	PaneChat
	PaneSources
	paneCount
)

var paneNames = [paneCount]string{"Observations", "Alerts", "Chat", "Sources"}

var scopes = []api.Scope{api.ScopeBoth, api.ScopeJWST, api.ScopeHubble}

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold any component. It receives snapshots via
// messages and acts through Commands.
type App struct {
	cmds       Commands
	categories []string
	now        func() time.Time

	pane      Pane
	feed      feed.MergedFeed
	filter    feed.FilterState
	alerts    []alerts.AlertRecord
	session   chat.SessionSnapshot
	telemetry dashboard.Telemetry
	track     []store.Position
	health    []store.Health

	feedCursor  int
	alertCursor int

	input      textinput.Model
	transcript viewport.Model
	spinner    spinner.Model

	err    error
	width  int
	height int
	ready  bool
}

// NewApp creates an App. categories are the selectable observation
// categories; the empty category ("all") is always offered first.
func NewApp(cmds Commands, filter feed.FilterState, categories []string) App {
	ti := textinput.New()
	ti.Placeholder = "Ask about missions, telescopes, space weather..."
	ti.CharLimit = 500
	ti.Prompt = "› "
	ti.Cursor.SetMode(cursor.CursorStatic)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return App{
		cmds:       cmds,
		categories: append([]string{""}, categories...),
		now:        time.Now,
		filter:     filter,
		feed:       feed.MergedFeed{Filter: filter, Loading: true, PendingFilter: filter},
		session:    chat.SessionSnapshot{PendingIndex: -1},
		input:      ti,
		transcript: viewport.New(80, 20),
		spinner:    sp,
	}
}

// Init starts the spinner and loads the recorded history.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.loadHistory())
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.input.Width = msg.Width - 6
		a.transcript.Width = msg.Width
		a.transcript.Height = a.bodyHeight() - 2
		a.refreshTranscript()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.session.Busy() {
			a.refreshTranscript()
		}
		return a, cmd

	case FeedChanged:
		a.feed = msg.Feed
		a.filter = msg.Feed.Filter
		if msg.Feed.Loading {
			a.filter = msg.Feed.PendingFilter
		}
		a.feedCursor = clampCursor(a.feedCursor, len(a.feed.Items))
		return a, nil

	case AlertsChanged:
		a.alerts = msg.Alerts
		a.alertCursor = clampCursor(a.alertCursor, len(a.alerts))
		return a, nil

	case SessionChanged:
		a.session = msg.Session
		a.refreshTranscript()
		return a, nil

	case TelemetryChanged:
		a.telemetry = msg.Telemetry
		return a, nil

	case HistoryLoaded:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.track = msg.Track
		a.health = msg.Health
		return a, nil

	case CommandDone:
		if msg.Err != nil {
			a.err = errors.New(msg.Action + ": " + msg.Err.Error())
		}
		return a, nil
	}

	if a.pane == PaneChat {
		var cmd tea.Cmd
		a.transcript, cmd = a.transcript.Update(msg)
		return a, cmd
	}
	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Clear any existing error on key press
	a.err = nil

	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}
	if a.input.Focused() {
		return a.handleInputKey(msg)
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "tab":
		a.pane = (a.pane + 1) % paneCount
		return a, a.enterPane()
	case "shift+tab":
		a.pane = (a.pane + paneCount - 1) % paneCount
		return a, a.enterPane()
	case "1", "2", "3", "4":
		a.pane = Pane(msg.String()[0] - '1')
		return a, a.enterPane()
	}

	switch a.pane {
	case PaneFeed:
		return a.handleFeedKey(msg)
	case PaneAlerts:
		return a.handleAlertKey(msg)
	case PaneChat:
		return a.handleChatKey(msg)
	case PaneSources:
		if msg.String() == "r" {
			return a, a.loadHistory()
		}
	}
	return a, nil
}

func (a App) handleFeedKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if a.feedCursor < len(a.feed.Items)-1 {
			a.feedCursor++
		}
	case "k", "up":
		if a.feedCursor > 0 {
			a.feedCursor--
		}
	case "g", "home":
		a.feedCursor = 0
	case "G", "end":
		a.feedCursor = clampCursor(len(a.feed.Items)-1, len(a.feed.Items))
	case "c":
		a.filter.Category = next(a.categories, a.filter.Category)
		a.feedCursor = 0
		return a, a.setFilter()
	case "s":
		a.filter.Scope = next(scopes, a.filter.Scope)
		a.feedCursor = 0
		return a, a.setFilter()
	case "m":
		return a, a.run("load more", a.cmds.LoadMore)
	case "r":
		return a, a.run("refresh feed", a.cmds.RefreshFeed)
	}
	return a, nil
}

func (a App) handleAlertKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if a.alertCursor < len(a.alerts)-1 {
			a.alertCursor++
		}
	case "k", "up":
		if a.alertCursor > 0 {
			a.alertCursor--
		}
	case "enter", " ":
		if a.alertCursor < len(a.alerts) {
			id := a.alerts[a.alertCursor].ID
			return a, a.run("mark seen", func() error {
				ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
				defer cancel()
				return a.cmds.MarkSeen(ctx, id)
			})
		}
	case "r":
		return a, a.run("refresh alerts", a.cmds.RefreshAlerts)
	}
	return a, nil
}

func (a App) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "i", "/", "enter":
		return a, a.input.Focus()
	case "x":
		return a, a.run("reset chat", a.cmds.ResetChat)
	}
	if len(a.session.Turns) == 0 && len(msg.Runes) == 1 {
		// Digits pick a suggested question before the first turn; 1-4
		// are taken by pane switching, so suggestions start at 5.
		if n := int(msg.Runes[0] - '5'); n >= 0 && n < len(a.session.Suggestions) {
			return a, a.send(a.session.Suggestions[n])
		}
	}
	var cmd tea.Cmd
	a.transcript, cmd = a.transcript.Update(msg)
	return a, cmd
}

func (a App) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.input.Blur()
		return a, nil
	case "enter":
		text := strings.TrimSpace(a.input.Value())
		if text == "" || a.session.Busy() {
			return a, nil
		}
		a.input.Reset()
		return a, a.send(text)
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a App) send(text string) tea.Cmd {
	return a.run("send", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return a.cmds.Send(ctx, text)
	})
}

func (a App) setFilter() tea.Cmd {
	fs := a.filter
	return a.run("filter", func() error { return a.cmds.SetFilter(fs) })
}

func (a App) enterPane() tea.Cmd {
	if a.pane == PaneSources {
		return a.loadHistory()
	}
	return nil
}

// run wraps a blocking action in a tea.Cmd reporting CommandDone.
func (a App) run(action string, fn func() error) tea.Cmd {
	if a.cmds == nil {
		return nil
	}
	return func() tea.Msg {
		return CommandDone{Action: action, Err: fn()}
	}
}

func (a App) loadHistory() tea.Cmd {
	if a.cmds == nil {
		return nil
	}
	cmds := a.cmds
	return func() tea.Msg {
		track, err := cmds.Track(trackLength)
		if err != nil {
			return HistoryLoaded{Err: err}
		}
		health, err := cmds.SourceHealth()
		return HistoryLoaded{Track: track, Health: health, Err: err}
	}
}

func (a *App) refreshTranscript() {
	a.transcript.SetContent(renderTranscript(a.session, a.spinner.View(), a.transcript.Width))
	a.transcript.GotoBottom()
}

// bodyHeight is the space between the header (tabs + summary) and the
// status bar.
func (a App) bodyHeight() int {
	h := a.height - 3
	if a.err != nil {
		h--
	}
	if h < 1 {
		h = 1
	}
	return h
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	var body string
	now := a.now()
	switch a.pane {
	case PaneFeed:
		body = RenderStream(a.feed.Items, a.feedCursor, a.width, a.bodyHeight(), now)
	case PaneAlerts:
		body = renderAlerts(a.alerts, a.alertCursor, a.width, a.bodyHeight(), now)
	case PaneChat:
		body = a.transcript.View() + "\n" + a.input.View()
	case PaneSources:
		body = sourcesPanel(a.telemetry.Sources, a.health, a.track, a.width, a.bodyHeight(), now)
	}
	body = lipgloss.NewStyle().Height(a.bodyHeight()).MaxHeight(a.bodyHeight()).Render(body)

	errorBar := ""
	if a.err != nil {
		errorBar = ErrorStyle.Width(a.width).Render("Error: "+a.err.Error()+" (press any key to dismiss)") + "\n"
	}

	return a.renderTabs() + "\n" +
		Header.Width(a.width).MaxWidth(a.width).Render(summaryLine(a.telemetry, a.unread())) + "\n" +
		body + "\n" +
		errorBar +
		a.renderStatusBar()
}

func (a App) renderTabs() string {
	tabs := make([]string, 0, paneCount)
	for i, name := range paneNames {
		style := InactiveTab
		if Pane(i) == a.pane {
			style = ActiveTab
		}
		tabs = append(tabs, style.Render(name))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (a App) renderStatusBar() string {
	key := func(k, desc string) string {
		return StatusBarKey.Render(k) + StatusBarText.Render(":"+desc)
	}

	var parts []string
	switch a.pane {
	case PaneFeed:
		category := a.filter.Category
		if category == "" {
			category = "all"
		}
		parts = append(parts,
			StatusBarText.Render(string(a.filter.Scope)+" / "+category),
			key("c", "category"), key("s", "scope"), key("m", "more"), key("r", "refresh"))
		if a.feed.Loading {
			parts = append(parts, a.spinner.View()+" loading")
		}
		for _, t := range a.feed.Failed {
			parts = append(parts, StaleStyle.Render(string(t)+" unavailable"))
		}
	case PaneAlerts:
		parts = append(parts, key("enter", "mark seen"), key("r", "refresh"))
	case PaneChat:
		if a.input.Focused() {
			parts = append(parts, key("enter", "send"), key("esc", "done"))
		} else {
			parts = append(parts, key("i", "type"), key("x", "reset"))
		}
		if a.session.Busy() {
			parts = append(parts, a.spinner.View()+" waiting for reply")
		}
	case PaneSources:
		parts = append(parts, key("r", "reload history"))
	}
	parts = append(parts, key("tab", "pane"), key("q", "quit"))
	return StatusBar.Width(a.width).Render(strings.Join(parts, "  "))
}

func (a App) unread() int {
	n := 0
	for _, r := range a.alerts {
		if !r.Seen {
			n++
		}
	}
	return n
}

func clampCursor(cursor, n int) int {
	if cursor >= n {
		cursor = n - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	return cursor
}

// next returns the element after cur in list, wrapping around.
func next[T comparable](list []T, cur T) T {
	for i, v := range list {
		if v == cur {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}

// Pane returns the active pane (for testing).
func (a App) Pane() Pane { return a.pane }

// Filter returns the filter the UI last requested (for testing).
func (a App) Filter() feed.FilterState { return a.filter }
