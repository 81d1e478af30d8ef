// Package supersede applies only the newest response per logical slot.
//
// Every Dispatch stamps the slot with a fresh token. When the response
// arrives on the loop it is applied only if its token is still the slot's
// current one; otherwise it is dropped, whatever order the network
// delivered things in.
package supersede

import (
	"context"

	"github.com/abelbrown/skywatch/internal/logging"
	"github.com/abelbrown/skywatch/internal/loop"
)

// Token identifies one dispatched request. Zero means "never dispatched".
type Token uint64

// Controller tracks the current token of each slot. Confined to the loop.
type Controller[T any] struct {
	loop    *loop.Loop
	name    string
	slots   map[string]Token
	next    Token
	dropped uint64
	log     logging.Logger
}

// New creates a controller; name only shows up in logs.
func New[T any](l *loop.Loop, name string) *Controller[T] {
	return &Controller[T]{
		loop:  l,
		name:  name,
		slots: make(map[string]Token),
		log:   logging.WithPrefix("supersede"),
	}
}

// Dispatch issues op for key and makes it the slot's current request.
// apply runs on the loop with op's result only if no later Dispatch or
// Invalidate touched the same key in the meantime.
func (c *Controller[T]) Dispatch(key string, op func(ctx context.Context) (T, error), apply func(T, error)) Token {
	tok := c.bump(key)
	loop.Await(c.loop, op, func(v T, err error) {
		if c.slots[key] != tok {
			c.dropped++
			c.log.Debug("dropping superseded response", "controller", c.name, "key", key, "token", tok, "current", c.slots[key])
			return
		}
		apply(v, err)
	})
	return tok
}

// Invalidate retires whatever is in flight for key without issuing a new
// request.
func (c *Controller[T]) Invalidate(key string) Token {
	return c.bump(key)
}

// Current returns the slot's token.
func (c *Controller[T]) Current(key string) Token {
	return c.slots[key]
}

// Dropped counts responses discarded as stale.
func (c *Controller[T]) Dropped() uint64 {
	return c.dropped
}

func (c *Controller[T]) bump(key string) Token {
	c.next++
	c.slots[key] = c.next
	return c.next
}
