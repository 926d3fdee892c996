// Package ratelimit tracks the rate limit buckets a remote API assigns to
// routes at runtime and blocks callers locally before the server would
// reject them.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Gate is an open/closed signal with a timed automatic reopen. It starts
// open. CloseFor closes it for a fixed duration after which it reopens on
// its own; any number of callers can Wait on it concurrently and are all
// released together when it reopens.
type Gate struct {
	mu   sync.Mutex
	open bool
	ch   chan struct{} // closed channel == gate open
}

// NewGate returns an open gate.
func NewGate() *Gate {
	ch := make(chan struct{})
	close(ch)
	return &Gate{open: true, ch: ch}
}

// Wait blocks until the gate is open or ctx is cancelled. Returns
// immediately when the gate is already open. Cancelling one waiter does not
// disturb the gate or other waiters.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseFor closes the gate and schedules a reopen after d. Calling CloseFor
// on a closed gate is a no-op: the first closer wins and the existing reopen
// time is neither extended nor shortened. At most one reopen timer is
// pending at any time.
func (g *Gate) CloseFor(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return
	}

	g.open = false
	ch := make(chan struct{})
	g.ch = ch

	time.AfterFunc(d, func() {
		g.mu.Lock()
		g.open = true
		close(ch)
		g.mu.Unlock()
	})
}

// IsOpen reports whether the gate is currently open.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}
