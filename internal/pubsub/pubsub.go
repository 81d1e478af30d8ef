// Package pubsub carries immutable snapshots from components to their
// consumers (the rendering layer, recorders, CLI commands).
package pubsub

import "sync"

// Topic fans a snapshot out to every subscriber. Publish and the
// subscriber callbacks run on the loop goroutine; Subscribe and the
// returned cancel func may be called from anywhere.
type Topic[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(T)
	order  []int
}

// Subscribe registers fn and returns a func that removes it.
func (t *Topic[T]) Subscribe(fn func(T)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs == nil {
		t.subs = make(map[int]func(T))
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.order = append(t.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
			for i, v := range t.order {
				if v == id {
					t.order = append(t.order[:i], t.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers v to subscribers in subscription order.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	fns := make([]func(T), 0, len(t.order))
	for _, id := range t.order {
		fns = append(fns, t.subs[id])
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Mailbox holds at most one undelivered value. Put never blocks: a newer
// value replaces an unread older one. Snapshots are replaced wholesale, so
// a slow reader only ever misses intermediate states, never the latest.
type Mailbox[T any] struct {
	ch chan T
	mu sync.Mutex
}

// NewMailbox returns an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, 1)}
}

// Put stores v, discarding any value not yet received.
func (m *Mailbox[T]) Put(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.ch:
	default:
	}
	m.ch <- v
}

// C is the receive side.
func (m *Mailbox[T]) C() <-chan T {
	return m.ch
}
