// Package dashboard wires the polled sources and the feed, alert and chat
// components onto one loop, and exposes loop-safe commands and snapshot
// subscriptions to the rendering layer and CLI.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/abelbrown/skywatch/internal/alerts"
	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/chat"
	"github.com/abelbrown/skywatch/internal/clock"
	"github.com/abelbrown/skywatch/internal/config"
	"github.com/abelbrown/skywatch/internal/feed"
	"github.com/abelbrown/skywatch/internal/logging"
	"github.com/abelbrown/skywatch/internal/loop"
	"github.com/abelbrown/skywatch/internal/news"
	"github.com/abelbrown/skywatch/internal/poll"
	"github.com/abelbrown/skywatch/internal/pubsub"
	"github.com/abelbrown/skywatch/internal/store"
)

// Source IDs of the polled feeds. News sources are "news:<feed name>".
const (
	SourceISS          = "iss"
	SourceJWSTStatus   = "jwst_status"
	SourceAnalytics    = "analytics"
	SourceSpaceWeather = "space_weather"
	newsPrefix         = "news:"
)

// maxHeadlines caps the merged headline list.
const maxHeadlines = 30

// Backend is every HTTP capability the dashboard consumes.
type Backend interface {
	ISSPosition(ctx context.Context) (api.ISSPosition, error)
	TelescopeStatus(ctx context.Context, t api.Telescope) (api.TelescopeStatus, error)
	Analytics(ctx context.Context) (api.AnalyticsOverview, error)
	SpaceWeather(ctx context.Context) ([]api.SpaceWeatherAlert, error)
	feed.Source
	alerts.Source
	chat.Backend
}

// HeadlineFetcher reads one news feed.
type HeadlineFetcher interface {
	Fetch(ctx context.Context, f news.Feed) ([]news.Headline, error)
}

// Options configures a Dashboard.
type Options struct {
	Clock  clock.Clock
	Strict bool
	// News defaults to a gofeed-backed fetcher.
	News HeadlineFetcher
}

// SourceStatus is the health of one polled source.
type SourceStatus struct {
	ID                  string
	Endpoint            string
	Cadence             string
	Stale               bool
	ConsecutiveFailures int
	LastSuccessAt       time.Time
	LastErr             string
}

// Telemetry is the snapshot of every periodically polled value.
type Telemetry struct {
	ISS          *api.ISSPosition
	JWST         *api.TelescopeStatus
	Analytics    *api.AnalyticsOverview
	SpaceWeather []api.SpaceWeatherAlert
	Headlines    []news.Headline
	Sources      []SourceStatus
}

// View bundles the latest snapshot of every component.
type View struct {
	Feed      feed.MergedFeed
	Alerts    []alerts.AlertRecord
	Unread    int
	Chat      chat.SessionSnapshot
	Telemetry Telemetry
}

// Dashboard owns the components. Methods documented as loop-safe may be
// called from any goroutine; everything else runs on the loop.
type Dashboard struct {
	loop   *loop.Loop
	clock  clock.Clock
	cfg    *config.Config
	client Backend
	news   HeadlineFetcher

	sched  *poll.Scheduler
	feed   *feed.Feed
	alerts *alerts.Tracker
	chat   *chat.Session

	history  *store.Store
	recorder *store.Recorder

	telemetry Telemetry
	headlines map[string][]news.Headline
	cadences  map[string]string
	changed   pubsub.Topic[Telemetry]
	untick    func()
	log       logging.Logger
}

// New builds a Dashboard. Nothing is fetched until Start (or an explicit
// refresh command).
func New(l *loop.Loop, client Backend, cfg *config.Config, opts Options) (*Dashboard, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.News == nil {
		opts.News = news.NewFetcher(cfg.API.Timeout)
	}
	scope, err := api.ParseScope(cfg.Feed.Scope)
	if err != nil {
		return nil, err
	}

	history, err := store.Open(cfg.History.MaxPositions)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	d := &Dashboard{
		loop:   l,
		clock:  opts.Clock,
		cfg:    cfg,
		client: client,
		news:   opts.News,
		sched:  poll.NewScheduler(l, opts.Clock),
		feed: feed.New(l, client, feed.Options{
			PageSize: cfg.Feed.PageSize,
			Filter:   feed.FilterState{Category: cfg.Feed.Category, Scope: scope},
			Clock:    opts.Clock,
		}),
		alerts: alerts.NewTracker(l, client, alerts.Options{
			Limit:      cfg.Alerts.Limit,
			UnreadOnly: cfg.Alerts.UnreadOnly,
		}),
		chat: chat.NewSession(l, client, chat.Options{
			Fallback: cfg.Chat.FallbackMessage,
			Strict:   opts.Strict,
			Clock:    opts.Clock,
		}),
		history:   history,
		recorder:  store.NewRecorder(history),
		headlines: make(map[string][]news.Headline),
		cadences:  make(map[string]string),
		log:       logging.WithPrefix("dashboard"),
	}
	return d, nil
}

// Start schedules every poller and loads the on-demand components.
// Runs on the loop.
func (d *Dashboard) Start() error {
	if d.untick != nil {
		return nil
	}
	d.untick = d.sched.OnSourceTick(d.onTick)

	p := d.cfg.Poll
	if err := schedule(d, SourceISS, "/iss-tracking", p.ISS, d.client.ISSPosition, d.onISS); err != nil {
		return err
	}
	jwst := func(ctx context.Context) (api.TelescopeStatus, error) {
		return d.client.TelescopeStatus(ctx, api.JWST)
	}
	if err := schedule(d, SourceJWSTStatus, "/telescopes/jwst/status", p.JWSTStatus, jwst, d.onJWST); err != nil {
		return err
	}
	if err := schedule(d, SourceAnalytics, "/analytics/overview", p.Analytics, d.client.Analytics, d.onAnalytics); err != nil {
		return err
	}
	if err := schedule(d, SourceSpaceWeather, "/space-weather", p.SpaceWeather, d.client.SpaceWeather, d.onSpaceWeather); err != nil {
		return err
	}
	for _, f := range d.cfg.News.Feeds {
		fetch := func(ctx context.Context) ([]news.Headline, error) {
			return d.news.Fetch(ctx, f)
		}
		onResult := func(r poll.Result[[]news.Headline]) { d.onHeadlines(f.Name, r) }
		if err := schedule(d, newsPrefix+f.Name, f.URL, p.News, fetch, onResult); err != nil {
			return err
		}
	}

	d.feed.Refresh()
	d.alerts.Refresh()
	d.chat.FetchSuggestions()
	d.log.Info("dashboard started", "sources", len(d.sched.Sources()))
	return nil
}

func schedule[T any](d *Dashboard, id, endpoint string, c config.Cadence, fetch func(context.Context) (T, error), onResult func(poll.Result[T])) error {
	cadence, err := c.Schedule()
	if err != nil {
		return fmt.Errorf("source %s: %w", id, err)
	}
	d.cadences[id] = c.String()
	poll.Schedule(d.sched, poll.DataSource{ID: id, Endpoint: endpoint, Cadence: cadence}, fetch, onResult)
	return nil
}

// Stop cancels every poller. Runs on the loop.
func (d *Dashboard) Stop() {
	d.sched.CancelAll()
	if d.untick != nil {
		d.untick()
		d.untick = nil
	}
}

// Close flushes and releases the history. Call after the loop stopped.
func (d *Dashboard) Close() error {
	d.recorder.Close()
	return d.history.Close()
}

func (d *Dashboard) onISS(r poll.Result[api.ISSPosition]) {
	if r.Err != nil {
		return
	}
	pos := r.Value
	d.telemetry.ISS = &pos
	d.recorder.Position(store.Position{
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Altitude:  pos.Altitude,
		Velocity:  pos.Velocity,
		At:        r.At,
	})
}

func (d *Dashboard) onJWST(r poll.Result[api.TelescopeStatus]) {
	if r.Err == nil {
		status := r.Value
		d.telemetry.JWST = &status
	}
}

func (d *Dashboard) onAnalytics(r poll.Result[api.AnalyticsOverview]) {
	if r.Err == nil {
		a := r.Value
		d.telemetry.Analytics = &a
	}
}

func (d *Dashboard) onSpaceWeather(r poll.Result[[]api.SpaceWeatherAlert]) {
	if r.Err == nil {
		d.telemetry.SpaceWeather = r.Value
	}
}

func (d *Dashboard) onHeadlines(feedName string, r poll.Result[[]news.Headline]) {
	if r.Err != nil {
		return
	}
	d.headlines[feedName] = r.Value
	d.telemetry.Headlines = mergeHeadlines(d.cfg.News.Feeds, d.headlines)
}

// mergeHeadlines walks feeds in config order so the first configured feed
// carrying an ID wins, then sorts newest first and caps the list.
func mergeHeadlines(feeds []news.Feed, byFeed map[string][]news.Headline) []news.Headline {
	var merged []news.Headline
	seen := make(map[string]bool)
	for _, f := range feeds {
		for _, h := range byFeed[f.Name] {
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			merged = append(merged, h)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Published.Equal(merged[j].Published) {
			return merged[i].Published.After(merged[j].Published)
		}
		return merged[i].ID < merged[j].ID
	})
	if len(merged) > maxHeadlines {
		merged = merged[:maxHeadlines]
	}
	return merged
}

// onTick runs after the source's onResult, so telemetry already holds the
// new value when it is published here.
func (d *Dashboard) onTick(t poll.Tick) {
	tick := store.Tick{SourceID: t.SourceID, At: t.At}
	if t.Err != nil {
		tick.Err = t.Err.Error()
	}
	d.recorder.Tick(tick)

	now := d.clock.Now()
	sources := d.sched.Sources()
	statuses := make([]SourceStatus, 0, len(sources))
	for _, s := range sources {
		st := SourceStatus{
			ID:                  s.ID,
			Endpoint:            s.Endpoint,
			Cadence:             d.cadences[s.ID],
			Stale:               s.Stale(now),
			ConsecutiveFailures: s.ConsecutiveFailures,
			LastSuccessAt:       s.LastSuccessAt,
		}
		if s.LastErr != nil {
			st.LastErr = s.LastErr.Error()
		}
		statuses = append(statuses, st)
	}
	d.telemetry.Sources = statuses
	d.changed.Publish(d.telemetry)
}

// snapshot assembles a View. Runs on the loop.
func (d *Dashboard) snapshot() View {
	return View{
		Feed:      d.feed.Snapshot(),
		Alerts:    d.alerts.Snapshot(),
		Unread:    d.alerts.Unread(),
		Chat:      d.chat.Snapshot(),
		Telemetry: d.telemetry,
	}
}
