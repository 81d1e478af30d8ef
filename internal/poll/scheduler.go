// Package poll runs independently paced repeating fetches.
//
// Each scheduled task fires once on registration and then again one
// cadence after the previous attempt completed, so a slow response delays
// its own source instead of stacking dispatches. Failures reschedule at
// the normal cadence; staleness is reported, not retried aggressively.
//
// Cancellation never aborts I/O. It bumps the task's generation and the
// completion, which runs on the loop, drops any result whose captured
// generation no longer matches. Because completions and Cancel both run on
// the loop goroutine, no onResult call can happen after Cancel returns.
package poll

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/abelbrown/skywatch/internal/clock"
	"github.com/abelbrown/skywatch/internal/logging"
	"github.com/abelbrown/skywatch/internal/loop"
	"github.com/abelbrown/skywatch/internal/pubsub"
)

// ErrUnknownHandle is returned for handles that were never issued or are
// already cancelled.
var ErrUnknownHandle = errors.New("poll: unknown handle")

// Handle names a scheduled task.
type Handle uint64

type task struct {
	handle    Handle
	source    DataSource
	state     PollTask
	timer     clock.Timer
	cancelled bool

	run     func(ctx context.Context) (any, error)
	deliver func(v any, err error, at time.Time, gen uint64)
}

// Scheduler owns the poll tasks. All methods must be called on the loop.
type Scheduler struct {
	loop  *loop.Loop
	clock clock.Clock
	tasks map[Handle]*task
	next  Handle
	ticks pubsub.Topic[Tick]
	log   logging.Logger
}

// NewScheduler creates a Scheduler bound to l. A nil clock means real time.
func NewScheduler(l *loop.Loop, c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	return &Scheduler{
		loop:  l,
		clock: c,
		tasks: make(map[Handle]*task),
		log:   logging.WithPrefix("poll"),
	}
}

// Schedule registers a repeating fetch for src and dispatches it
// immediately. onResult runs on the loop for every applied completion.
func Schedule[T any](s *Scheduler, src DataSource, fetch func(ctx context.Context) (T, error), onResult func(Result[T])) Handle {
	if src.Cadence == nil {
		panic("poll: source " + src.ID + " has no cadence")
	}

	s.next++
	t := &task{
		handle: s.next,
		source: src,
		state:  PollTask{SourceID: src.ID},
		run: func(ctx context.Context) (any, error) {
			return fetch(ctx)
		},
		deliver: func(v any, err error, at time.Time, gen uint64) {
			if onResult == nil {
				return
			}
			var tv T
			if v != nil {
				tv = v.(T)
			}
			onResult(Result[T]{SourceID: src.ID, Value: tv, Err: err, At: at, Generation: gen})
		},
	}
	s.tasks[t.handle] = t

	s.log.Debug("scheduled", "source", src.ID, "endpoint", src.Endpoint)
	s.dispatch(t)
	return t.handle
}

// Cancel stops a task. Any in-flight response for it is discarded.
func (s *Scheduler) Cancel(h Handle) error {
	t, ok := s.tasks[h]
	if !ok {
		return ErrUnknownHandle
	}
	t.cancelled = true
	t.state.Generation++
	if t.timer != nil {
		t.timer.Stop()
	}
	delete(s.tasks, h)
	s.log.Debug("cancelled", "source", t.source.ID, "generation", t.state.Generation)
	return nil
}

// CancelAll cancels every task.
func (s *Scheduler) CancelAll() {
	for h := range s.tasks {
		s.Cancel(h)
	}
}

// Refresh dispatches a task now. An attempt already in flight is
// abandoned through the generation bump.
func (s *Scheduler) Refresh(h Handle) error {
	t, ok := s.tasks[h]
	if !ok {
		return ErrUnknownHandle
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	s.dispatch(t)
	return nil
}

// Sources returns a copy of every scheduled DataSource, sorted by ID.
func (s *Scheduler) Sources() []DataSource {
	out := make([]DataSource, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tasks returns a copy of every PollTask, sorted by source ID.
func (s *Scheduler) Tasks() []PollTask {
	out := make([]PollTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Handle finds the handle of a source by ID.
func (s *Scheduler) Handle(sourceID string) (Handle, bool) {
	for h, t := range s.tasks {
		if t.source.ID == sourceID {
			return h, true
		}
	}
	return 0, false
}

// OnSourceTick subscribes to per-source completion ticks.
func (s *Scheduler) OnSourceTick(fn func(Tick)) (cancel func()) {
	return s.ticks.Subscribe(fn)
}

func (s *Scheduler) dispatch(t *task) {
	t.state.Generation++
	gen := t.state.Generation
	t.state.InFlight = true
	t.state.NextFireAt = time.Time{}
	t.source.LastFetchAt = s.clock.Now()

	loop.Await(s.loop, t.run, func(v any, err error) {
		s.complete(t, gen, v, err)
	})
}

func (s *Scheduler) complete(t *task, gen uint64, v any, err error) {
	if t.cancelled || gen != t.state.Generation {
		s.log.Debug("discarding superseded poll result", "source", t.source.ID, "generation", gen, "current", t.state.Generation)
		return
	}

	now := s.clock.Now()
	t.state.InFlight = false
	if err != nil {
		t.source.ConsecutiveFailures++
		t.source.LastErr = err
		s.log.Warn("poll failed", "source", t.source.ID, "failures", t.source.ConsecutiveFailures, "err", err)
	} else {
		t.source.ConsecutiveFailures = 0
		t.source.LastErr = nil
		t.source.LastSuccessAt = now
	}

	t.deliver(v, err, now, gen)

	s.ticks.Publish(Tick{
		SourceID:            t.source.ID,
		At:                  now,
		Generation:          gen,
		Err:                 err,
		ConsecutiveFailures: t.source.ConsecutiveFailures,
		Stale:               t.source.Stale(now),
	})

	// onResult or a tick subscriber may have cancelled or refreshed us.
	if t.cancelled || gen != t.state.Generation {
		return
	}
	s.arm(t, now)
}

func (s *Scheduler) arm(t *task, from time.Time) {
	next := t.source.Cadence.Next(from)
	if next.IsZero() {
		s.log.Warn("cadence has no next fire time, source parked", "source", t.source.ID)
		return
	}
	t.state.NextFireAt = next
	gen := t.state.Generation

	t.timer = s.clock.AfterFunc(next.Sub(from), func() {
		s.loop.Post(func() {
			if t.cancelled || gen != t.state.Generation || t.state.InFlight {
				return
			}
			s.dispatch(t)
		})
	})
}
