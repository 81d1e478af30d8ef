// Package alerts tracks read/unread state of insight alerts.
//
// MarkSeen flips the local record at once, acknowledges it with the
// backend, and then refetches the list no matter how the acknowledgement
// went. The refetch is authoritative: if the server still reports the
// alert unseen, the local flag goes back to false.
package alerts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/logging"
	"github.com/abelbrown/skywatch/internal/loop"
	"github.com/abelbrown/skywatch/internal/pubsub"
	"github.com/abelbrown/skywatch/internal/supersede"
)

// ErrUnknownAlert is returned by MarkSeen for IDs not in the current list.
var ErrUnknownAlert = errors.New("alerts: unknown alert")

// DefaultLimit matches the backend's default page.
const DefaultLimit = 20

const slot = "alerts"

// Priority ranks an alert.
type Priority string

const (
	Low    Priority = "low"
	Medium Priority = "medium"
	High   Priority = "high"
)

// ParsePriority maps backend strings onto a Priority, defaulting to Low.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(s)) {
	case High:
		return High
	case Medium:
		return Medium
	default:
		return Low
	}
}

// AlertRecord is the tracker's view of one alert.
type AlertRecord struct {
	ID        string
	InsightID string
	Priority  Priority
	Seen      bool
	CreatedAt time.Time
	Title     string
}

func fromAPI(a api.Alert) AlertRecord {
	r := AlertRecord{
		ID:        a.ID,
		InsightID: a.InsightID,
		Priority:  ParsePriority(a.Priority),
		Seen:      a.Seen,
		CreatedAt: a.CreatedAt.Time,
	}
	if a.Insight != nil {
		r.Title = a.Insight.Title
	}
	return r
}

// Source is the alert backend.
type Source interface {
	Alerts(ctx context.Context, q api.AlertQuery) ([]api.Alert, error)
	MarkAlertSeen(ctx context.Context, id string) error
}

// Options configures the alert query.
type Options struct {
	Limit      int
	UnreadOnly bool
}

// Tracker owns the alert list. All methods must be called on the loop.
type Tracker struct {
	loop    *loop.Loop
	src     Source
	ctrl    *supersede.Controller[[]api.Alert]
	query   api.AlertQuery
	records []AlertRecord
	lastErr error
	changed pubsub.Topic[[]AlertRecord]
	log     logging.Logger
}

// NewTracker creates an empty Tracker. Call Refresh to load.
func NewTracker(l *loop.Loop, src Source, opts Options) *Tracker {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Tracker{
		loop:    l,
		src:     src,
		ctrl:    supersede.New[[]api.Alert](l, "alerts"),
		query:   api.AlertQuery{UnreadOnly: opts.UnreadOnly, Limit: opts.Limit},
		records: []AlertRecord{},
		log:     logging.WithPrefix("alerts"),
	}
}

// Refresh refetches the alert list. Only the newest refetch is applied.
// A failed refetch keeps the current records.
func (t *Tracker) Refresh() {
	q := t.query
	t.ctrl.Dispatch(slot, func(ctx context.Context) ([]api.Alert, error) {
		return t.src.Alerts(ctx, q)
	}, func(list []api.Alert, err error) {
		if err != nil {
			t.lastErr = err
			t.log.Warn("alert refresh failed", "err", err)
			return
		}
		t.lastErr = nil
		records := make([]AlertRecord, 0, len(list))
		for _, a := range list {
			records = append(records, fromAPI(a))
		}
		t.publish(records)
	})
}

// MarkSeen marks id seen locally, acknowledges it, then reconciles.
// Marking an alert that is already seen does nothing.
func (t *Tracker) MarkSeen(id string) error {
	idx := t.index(id)
	if idx < 0 {
		return ErrUnknownAlert
	}
	if t.records[idx].Seen {
		return nil
	}

	records := append([]AlertRecord(nil), t.records...)
	records[idx].Seen = true
	t.publish(records)

	// A list fetched before the acknowledgement lands would undo the flip.
	t.ctrl.Invalidate(slot)

	loop.Await(t.loop, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.src.MarkAlertSeen(ctx, id)
	}, func(_ struct{}, err error) {
		if err != nil {
			t.log.Warn("acknowledgement failed, reconciling", "id", id, "err", err)
		} else {
			t.log.Debug("acknowledged", "id", id)
		}
		t.Refresh()
	})
	return nil
}

// Snapshot returns the current records. Treat the slice as read-only.
func (t *Tracker) Snapshot() []AlertRecord {
	return t.records
}

// Unread counts records not yet seen.
func (t *Tracker) Unread() int {
	n := 0
	for _, r := range t.records {
		if !r.Seen {
			n++
		}
	}
	return n
}

// Err returns the error of the last refetch, if it failed.
func (t *Tracker) Err() error {
	return t.lastErr
}

// Dropped reports how many superseded list fetches were discarded.
func (t *Tracker) Dropped() uint64 {
	return t.ctrl.Dropped()
}

// OnAlertsChanged subscribes to alert list snapshots.
func (t *Tracker) OnAlertsChanged(fn func([]AlertRecord)) (cancel func()) {
	return t.changed.Subscribe(fn)
}

func (t *Tracker) index(id string) int {
	for i, r := range t.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (t *Tracker) publish(records []AlertRecord) {
	t.records = records
	t.changed.Publish(records)
}
