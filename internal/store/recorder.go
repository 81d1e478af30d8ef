package store

import (
	"sync"
	"sync/atomic"

	"github.com/abelbrown/skywatch/internal/logging"
)

// recorderChanSize is the capacity of the async write channel.
const recorderChanSize = 256

// Recorder writes to a Store from a background goroutine so the loop
// never waits on SQLite. Goroutine-safe. Writes are dropped, not
// blocked on, when the channel is full or the recorder is closed.
type Recorder struct {
	store     *Store
	ch        chan func(*Store) error
	dropped   atomic.Uint64
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	log       logging.Logger
}

// NewRecorder starts a Recorder. Call Close to flush and stop it.
func NewRecorder(s *Store) *Recorder {
	r := &Recorder{
		store: s,
		ch:    make(chan func(*Store) error, recorderChanSize),
		done:  make(chan struct{}),
		log:   logging.WithPrefix("store"),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for write := range r.ch {
		if err := write(r.store); err != nil {
			r.dropped.Add(1)
			r.log.Warn("history write failed", "err", err)
		}
	}
}

// Position queues an ISS sample.
func (r *Recorder) Position(p Position) {
	r.enqueue(func(s *Store) error { return s.AddPosition(p) })
}

// Tick queues a poll outcome.
func (r *Recorder) Tick(t Tick) {
	r.enqueue(func(s *Store) error { return s.RecordTick(t) })
}

func (r *Recorder) enqueue(write func(*Store) error) {
	defer func() {
		if recover() != nil {
			r.dropped.Add(1)
		}
	}()

	if r.closed.Load() {
		r.dropped.Add(1)
		return
	}
	select {
	case r.ch <- write:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many writes were lost.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close flushes queued writes and stops the drain goroutine. The Store
// itself stays open.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.ch)
		<-r.done
		if d := r.dropped.Load(); d > 0 {
			r.log.Warn("history writes dropped", "count", d)
		}
	})
}
