package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/abelbrown/skywatch/internal/clock"
	"github.com/abelbrown/skywatch/internal/loop"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	loop  *loop.Loop
	clock *clock.Fake
	sched *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	c := clock.NewFake(t0)
	return &harness{t: t, loop: l, clock: c, sched: NewScheduler(l, c)}
}

// on runs fn on the loop and waits for it.
func (h *harness) on(fn func()) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.loop.Do(ctx, fn); err != nil {
		h.t.Fatalf("Do: %v", err)
	}
}

func (h *harness) settle() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.loop.Settle(ctx); err != nil {
		h.t.Fatalf("Settle: %v", err)
	}
}

// advance moves the fake clock and lets the loop drain what it fired.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	h.settle()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

// gate is a fetch whose calls block until released.
type gate struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func newGate() *gate {
	return &gate{release: make(chan struct{}, 16)}
}

func (g *gate) fetch(ctx context.Context) (int, error) {
	n := g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return int(n), g.err
}

func (g *gate) open() { g.release <- struct{}{} }

func TestScheduleFiresImmediately(t *testing.T) {
	h := newHarness(t)

	var calls atomic.Int32
	var results []Result[string]
	h.on(func() {
		Schedule(h.sched, DataSource{ID: "iss", Cadence: Every(5 * time.Second)},
			func(ctx context.Context) (string, error) {
				calls.Add(1)
				return "pos", nil
			},
			func(r Result[string]) { results = append(results, r) })
	})
	h.settle()

	if calls.Load() != 1 {
		t.Fatalf("expected 1 fetch on registration, got %d", calls.Load())
	}
	h.on(func() {
		if len(results) != 1 || results[0].Value != "pos" || results[0].SourceID != "iss" {
			t.Errorf("unexpected results %+v", results)
		}
	})
}

func TestNextFireIsRelativeToCompletion(t *testing.T) {
	h := newHarness(t)
	g := newGate()

	h.on(func() {
		Schedule(h.sched, DataSource{ID: "jwst", Cadence: Every(5 * time.Second)}, g.fetch, nil)
	})

	// The request takes 3s to come back.
	h.clock.Advance(3 * time.Second)
	g.open()
	h.settle()

	h.on(func() {
		tasks := h.sched.Tasks()
		if len(tasks) != 1 {
			t.Fatalf("expected 1 task, got %d", len(tasks))
		}
		if want := t0.Add(8 * time.Second); !tasks[0].NextFireAt.Equal(want) {
			t.Errorf("NextFireAt = %v, want %v", tasks[0].NextFireAt, want)
		}
	})

	h.advance(4 * time.Second)
	if g.calls.Load() != 1 {
		t.Fatalf("fired early: %d calls", g.calls.Load())
	}
	g.open()
	h.advance(time.Second)
	if g.calls.Load() != 2 {
		t.Fatalf("expected second dispatch at completion+cadence, got %d calls", g.calls.Load())
	}
}

func TestNoOverlappingDispatch(t *testing.T) {
	h := newHarness(t)
	g := newGate()

	h.on(func() {
		Schedule(h.sched, DataSource{ID: "slow", Cadence: Every(time.Second)}, g.fetch, nil)
	})
	waitFor(t, func() bool { return g.calls.Load() == 1 })
	for i := 0; i < 10; i++ {
		h.clock.Advance(time.Second)
	}

	if g.calls.Load() != 1 {
		t.Fatalf("expected a single in-flight request, got %d", g.calls.Load())
	}
	h.on(func() {
		if !h.sched.Tasks()[0].InFlight {
			t.Error("task should be in flight")
		}
	})
	g.open()
	h.settle()
}

func TestCancelDiscardsInFlightResult(t *testing.T) {
	h := newHarness(t)
	g := newGate()

	var delivered atomic.Int32
	var handle Handle
	h.on(func() {
		handle = Schedule(h.sched, DataSource{ID: "analytics", Cadence: Every(time.Minute)}, g.fetch,
			func(Result[int]) { delivered.Add(1) })
	})
	h.on(func() {
		if err := h.sched.Cancel(handle); err != nil {
			t.Errorf("Cancel: %v", err)
		}
	})

	g.open()
	h.settle()
	h.advance(time.Hour)

	if delivered.Load() != 0 {
		t.Errorf("onResult ran %d times after cancel", delivered.Load())
	}
	if g.calls.Load() != 1 {
		t.Errorf("cancelled task dispatched again: %d calls", g.calls.Load())
	}
	if h.clock.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", h.clock.Pending())
	}
}

func TestCancelFromOnResultStopsRescheduling(t *testing.T) {
	h := newHarness(t)

	var calls atomic.Int32
	var handle Handle
	h.on(func() {
		handle = Schedule(h.sched, DataSource{ID: "once", Cadence: Every(time.Second)},
			func(ctx context.Context) (int, error) { return int(calls.Add(1)), nil },
			func(Result[int]) { h.sched.Cancel(handle) })
	})
	h.settle()
	h.advance(10 * time.Second)

	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestFailureReschedulesAtNormalCadence(t *testing.T) {
	h := newHarness(t)

	boom := errors.New("boom")
	var calls atomic.Int32
	var ticks []Tick
	h.on(func() {
		h.sched.OnSourceTick(func(tk Tick) { ticks = append(ticks, tk) })
		Schedule(h.sched, DataSource{ID: "weather", Cadence: Every(5 * time.Second)},
			func(ctx context.Context) (int, error) {
				calls.Add(1)
				return 0, boom
			}, nil)
	})
	h.settle()
	h.advance(4 * time.Second)
	if calls.Load() != 1 {
		t.Fatalf("failure retried early: %d calls", calls.Load())
	}
	h.advance(time.Second)
	if calls.Load() != 2 {
		t.Fatalf("expected retry at cadence, got %d calls", calls.Load())
	}

	h.on(func() {
		if len(ticks) != 2 {
			t.Fatalf("expected 2 ticks, got %d", len(ticks))
		}
		last := ticks[1]
		if !errors.Is(last.Err, boom) || last.ConsecutiveFailures != 2 || !last.Stale {
			t.Errorf("unexpected tick %+v", last)
		}
		src := h.sched.Sources()[0]
		if src.ConsecutiveFailures != 2 || !src.LastSuccessAt.IsZero() {
			t.Errorf("unexpected source state %+v", src)
		}
	})
}

func TestSuccessResetsFailures(t *testing.T) {
	h := newHarness(t)

	var calls atomic.Int32
	h.on(func() {
		Schedule(h.sched, DataSource{ID: "flaky", Cadence: Every(time.Second)},
			func(ctx context.Context) (int, error) {
				if calls.Add(1) == 1 {
					return 0, errors.New("first fails")
				}
				return 1, nil
			}, nil)
	})
	h.settle()
	h.advance(time.Second)

	h.on(func() {
		src := h.sched.Sources()[0]
		if src.ConsecutiveFailures != 0 || src.LastErr != nil {
			t.Errorf("success should reset failures: %+v", src)
		}
		if !src.LastSuccessAt.Equal(t0.Add(time.Second)) {
			t.Errorf("LastSuccessAt = %v", src.LastSuccessAt)
		}
	})
}

func TestRefreshAbandonsInFlight(t *testing.T) {
	h := newHarness(t)
	g := newGate()

	var got []int
	var handle Handle
	h.on(func() {
		handle = Schedule(h.sched, DataSource{ID: "feed", Cadence: Every(time.Minute)}, g.fetch,
			func(r Result[int]) { got = append(got, r.Value) })
	})
	h.on(func() {
		if err := h.sched.Refresh(handle); err != nil {
			t.Errorf("Refresh: %v", err)
		}
	})

	// Two requests are blocked; release both, whichever returns first.
	g.open()
	g.open()
	h.settle()

	h.on(func() {
		if len(got) != 1 {
			t.Fatalf("expected exactly one applied result, got %v", got)
		}
		if tasks := h.sched.Tasks(); tasks[0].Generation != 2 {
			t.Errorf("expected generation 2, got %d", tasks[0].Generation)
		}
	})
}

func TestUnknownHandle(t *testing.T) {
	h := newHarness(t)
	h.on(func() {
		if err := h.sched.Cancel(42); !errors.Is(err, ErrUnknownHandle) {
			t.Errorf("Cancel: expected ErrUnknownHandle, got %v", err)
		}
		if err := h.sched.Refresh(42); !errors.Is(err, ErrUnknownHandle) {
			t.Errorf("Refresh: expected ErrUnknownHandle, got %v", err)
		}
	})
}

func TestCronCadence(t *testing.T) {
	h := newHarness(t)

	sched, err := cron.ParseStandard("*/15 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	h.on(func() {
		Schedule(h.sched, DataSource{ID: "news", Cadence: sched},
			func(ctx context.Context) (int, error) { return int(calls.Add(1)), nil }, nil)
	})
	h.settle()

	h.on(func() {
		if want := t0.Add(15 * time.Minute); !h.sched.Tasks()[0].NextFireAt.Equal(want) {
			t.Errorf("NextFireAt = %v, want %v", h.sched.Tasks()[0].NextFireAt, want)
		}
	})
	h.advance(15 * time.Minute)
	if calls.Load() != 2 {
		t.Errorf("expected cron fire, got %d calls", calls.Load())
	}
}

func TestStale(t *testing.T) {
	src := DataSource{ID: "x", Cadence: Every(10 * time.Second)}
	if !src.Stale(t0) {
		t.Error("never-succeeded source should be stale")
	}

	src.LastSuccessAt = t0
	if src.Stale(t0.Add(20 * time.Second)) {
		t.Error("two periods is not yet stale")
	}
	if !src.Stale(t0.Add(21 * time.Second)) {
		t.Error("more than two periods should be stale")
	}

	src.LastErr = errors.New("x")
	if !src.Stale(t0) {
		t.Error("failed last attempt should be stale")
	}
}
