// Package clock abstracts the time operations the scheduler depends on so
// tests can drive poll cadences deterministically.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the subset of the time package used by skywatch.
type Clock interface {
	Now() time.Time

	// AfterFunc waits for d, then calls f in its own goroutine.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer cancels a pending AfterFunc call.
type Timer interface {
	// Stop reports whether the call was prevented from firing.
	Stop() bool
}

// Real returns a Clock backed by the system clock.
func Real() Clock { return realClock{clockwork.NewRealClock()} }

type realClock struct{ c clockwork.Clock }

func (r realClock) Now() time.Time { return r.c.Now() }

func (r realClock) AfterFunc(d time.Duration, f func()) Timer {
	return r.c.AfterFunc(d, f)
}

// Fake is a manually advanced Clock on top of clockwork's fake. Advance
// returns only after the callbacks it fired have finished, and timers
// registered while it runs are not due until the next Advance.
type Fake struct {
	fc *clockwork.FakeClock

	// advancing is held for writing while the underlying clock moves.
	advancing sync.RWMutex

	mu     sync.Mutex
	timers []*fakeTimer
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{fc: clockwork.NewFakeClockAt(start)}
}

type fakeTimer struct {
	timer    clockwork.Timer
	deadline time.Time
	done     chan struct{}
	once     sync.Once
}

func (t *fakeTimer) finish() {
	t.once.Do(func() { close(t.done) })
}

func (t *fakeTimer) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *fakeTimer) Stop() bool {
	if t.timer.Stop() {
		t.finish()
		return true
	}
	return false
}

// Now returns the fake time.
func (c *Fake) Now() time.Time {
	return c.fc.Now()
}

// AfterFunc registers f to run once the clock passes now+d. A
// non-positive d fires right away.
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.advancing.RLock()
	defer c.advancing.RUnlock()

	t := &fakeTimer{deadline: c.fc.Now().Add(d), done: make(chan struct{})}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()

	t.timer = c.fc.AfterFunc(d, func() {
		defer t.finish()
		f()
	})
	return t
}

// Pending returns the number of timers that have not fired or stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.finished() {
			n++
		}
	}
	return n
}

// Advance moves time forward by d and waits for every timer that came due.
// Do not call it from inside a callback.
func (c *Fake) Advance(d time.Duration) {
	c.advancing.Lock()
	target := c.fc.Now().Add(d)

	c.mu.Lock()
	var due []*fakeTimer
	live := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.finished():
		case !t.deadline.After(target):
			due = append(due, t)
		default:
			live = append(live, t)
		}
	}
	c.timers = live
	c.mu.Unlock()

	c.fc.Advance(d)
	c.advancing.Unlock()

	for _, t := range due {
		<-t.done
	}
}
