package dashboard

import (
	"context"

	"github.com/abelbrown/skywatch/internal/alerts"
	"github.com/abelbrown/skywatch/internal/chat"
	"github.com/abelbrown/skywatch/internal/feed"
	"github.com/abelbrown/skywatch/internal/store"
)

// The methods in this file are loop-safe: they post onto the loop, and
// the ones that report a component error wait for it with Do.

// SetFilter replaces the observation filter.
func (d *Dashboard) SetFilter(fs feed.FilterState) error {
	return d.loop.Post(func() { d.feed.SetFilter(fs) })
}

// LoadMore requests one more page of observations.
func (d *Dashboard) LoadMore() error {
	return d.loop.Post(d.feed.LoadMore)
}

// RefreshFeed refetches the observation feed.
func (d *Dashboard) RefreshFeed() error {
	return d.loop.Post(func() { d.feed.Refresh() })
}

// RefreshAlerts refetches the alert list.
func (d *Dashboard) RefreshAlerts() error {
	return d.loop.Post(d.alerts.Refresh)
}

// MarkSeen marks an alert seen. It returns alerts.ErrUnknownAlert for IDs
// not in the current list.
func (d *Dashboard) MarkSeen(ctx context.Context, id string) error {
	var err error
	if doErr := d.loop.Do(ctx, func() { err = d.alerts.MarkSeen(id) }); doErr != nil {
		return doErr
	}
	return err
}

// Send submits a chat message. It returns chat.ErrBusy while a reply is
// pending.
func (d *Dashboard) Send(ctx context.Context, text string) error {
	var err error
	if doErr := d.loop.Do(ctx, func() { err = d.chat.Send(text) }); doErr != nil {
		return doErr
	}
	return err
}

// ResetChat clears the conversation.
func (d *Dashboard) ResetChat() error {
	return d.loop.Post(d.chat.Reset)
}

// RefreshSource polls one source now.
func (d *Dashboard) RefreshSource(ctx context.Context, id string) error {
	var err error
	if doErr := d.loop.Do(ctx, func() {
		h, ok := d.sched.Handle(id)
		if !ok {
			err = errUnknownSource(id)
			return
		}
		err = d.sched.Refresh(h)
	}); doErr != nil {
		return doErr
	}
	return err
}

// Snapshot returns the current View.
func (d *Dashboard) Snapshot(ctx context.Context) (View, error) {
	var v View
	err := d.loop.Do(ctx, func() { v = d.snapshot() })
	return v, err
}

// Track returns the last n ISS positions, oldest first.
func (d *Dashboard) Track(n int) ([]store.Position, error) {
	return d.history.Track(n)
}

// SourceHealth summarizes the recorded poll outcomes per source.
func (d *Dashboard) SourceHealth() ([]store.Health, error) {
	return d.history.SourceHealth()
}

// Subscriptions. Callbacks run on the loop and must not block.

func (d *Dashboard) OnMergedFeedChanged(fn func(feed.MergedFeed)) (cancel func()) {
	return d.feed.OnMergedFeedChanged(fn)
}

func (d *Dashboard) OnAlertsChanged(fn func([]alerts.AlertRecord)) (cancel func()) {
	return d.alerts.OnAlertsChanged(fn)
}

func (d *Dashboard) OnSessionChanged(fn func(chat.SessionSnapshot)) (cancel func()) {
	return d.chat.OnSessionChanged(fn)
}

// OnTelemetryChanged fires after every source tick.
func (d *Dashboard) OnTelemetryChanged(fn func(Telemetry)) (cancel func()) {
	return d.changed.Subscribe(fn)
}

type unknownSourceError string

func (e unknownSourceError) Error() string { return "dashboard: unknown source " + string(e) }

func errUnknownSource(id string) error { return unknownSourceError(id) }
