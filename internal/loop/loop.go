// Package loop provides the single cooperative scheduling loop that drives
// every skywatch component.
//
// Application state is only touched from the loop goroutine. Network I/O
// runs on its own goroutine via Await, and its continuation is posted back
// to the loop, so there is never parallel execution of application logic,
// only concurrent outstanding I/O.
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when posting to a loop that has stopped.
var ErrClosed = errors.New("loop: closed")

// Loop is an unbounded FIFO of events executed serially by Run.
type Loop struct {
	mu          sync.Mutex
	queue       []func()
	closed      bool
	busy        bool
	outstanding int
	changed     chan struct{} // closed and replaced on every idle-relevant transition

	wake chan struct{}
	done chan struct{}

	ctx    context.Context // handed to I/O; cancelled when the loop stops
	cancel context.CancelFunc
}

// New creates a loop. Nothing executes until Run is called.
func New() *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run executes posted events until ctx is cancelled or Close is called.
// It must be called exactly once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()

	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil
		}
		if len(l.queue) == 0 {
			l.notifyLocked()
			l.mu.Unlock()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.wake:
			}
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.busy = true
		l.mu.Unlock()

		fn()

		l.mu.Lock()
		l.busy = false
		l.mu.Unlock()
	}
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.notifyLocked()
	l.mu.Unlock()

	l.cancel()
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

// Close stops the loop after the event currently executing, if any.
// Queued events are discarded. Safe to call more than once.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Context is cancelled when the loop stops. Await hands it to I/O.
func (l *Loop) Context() context.Context {
	return l.ctx
}

// Post enqueues fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
	return nil
}

// Do runs fn on the loop and waits for it to finish. Never call Do from
// the loop goroutine itself: it would wait on its own queue forever.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Settle blocks until the queue is empty, no event is executing, and no
// Await operation is outstanding. Intended for tests and one-shot
// commands that need the loop to go quiet.
func (l *Loop) Settle(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return ErrClosed
		}
		if len(l.queue) == 0 && !l.busy && l.outstanding == 0 {
			l.mu.Unlock()
			return nil
		}
		ch := l.changed
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrClosed
		}
	}
}

// Outstanding returns the number of Await operations whose continuation
// has not run yet.
func (l *Loop) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outstanding
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) notifyLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *Loop) begin() {
	l.mu.Lock()
	l.outstanding++
	l.mu.Unlock()
}

func (l *Loop) end() {
	l.mu.Lock()
	l.outstanding--
	l.notifyLocked()
	l.mu.Unlock()
}

// Await runs op on its own goroutine and posts cont back to the loop with
// the result. This is the only suspension point in skywatch. If the loop
// has stopped by the time op returns, cont is dropped.
func Await[T any](l *Loop, op func(ctx context.Context) (T, error), cont func(T, error)) {
	l.begin()
	go func() {
		v, err := op(l.ctx)
		if postErr := l.Post(func() {
			defer l.end()
			cont(v, err)
		}); postErr != nil {
			l.end()
		}
	}()
}
