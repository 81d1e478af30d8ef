package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/skywatch/internal/alerts"
	"github.com/abelbrown/skywatch/internal/chat"
	"github.com/abelbrown/skywatch/internal/dashboard"
	"github.com/abelbrown/skywatch/internal/feed"
	"github.com/abelbrown/skywatch/internal/pubsub"
)

// Sender delivers messages into a running program; *tea.Program
// implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Subscriber exposes the snapshot topics; *dashboard.Dashboard implements
// it. Callbacks run on the loop and must not block.
type Subscriber interface {
	OnMergedFeedChanged(fn func(feed.MergedFeed)) (cancel func())
	OnAlertsChanged(fn func([]alerts.AlertRecord)) (cancel func())
	OnSessionChanged(fn func(chat.SessionSnapshot)) (cancel func())
	OnTelemetryChanged(fn func(dashboard.Telemetry)) (cancel func())
}

// Attach forwards every snapshot from s to p. Each topic gets its own
// latest-wins mailbox, so the loop never waits on the UI and a slow UI
// only skips intermediate snapshots. detach unsubscribes and waits for the
// forwarders to exit.
func Attach(ctx context.Context, p Sender, s Subscriber) (detach func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	unsubs := []func(){
		forward(ctx, &wg, p, s.OnMergedFeedChanged, func(v feed.MergedFeed) tea.Msg { return FeedChanged{Feed: v} }),
		forward(ctx, &wg, p, s.OnAlertsChanged, func(v []alerts.AlertRecord) tea.Msg { return AlertsChanged{Alerts: v} }),
		forward(ctx, &wg, p, s.OnSessionChanged, func(v chat.SessionSnapshot) tea.Msg { return SessionChanged{Session: v} }),
		forward(ctx, &wg, p, s.OnTelemetryChanged, func(v dashboard.Telemetry) tea.Msg { return TelemetryChanged{Telemetry: v} }),
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, u := range unsubs {
				u()
			}
			cancel()
			wg.Wait()
		})
	}
}

func forward[T any](ctx context.Context, wg *sync.WaitGroup, p Sender, subscribe func(func(T)) func(), wrap func(T) tea.Msg) (cancel func()) {
	mb := pubsub.NewMailbox[T]()
	cancel = subscribe(mb.Put)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-mb.C():
				p.Send(wrap(v))
			}
		}
	}()
	return cancel
}
