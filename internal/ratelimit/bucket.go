package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// UpdateKind classifies the outcome of feeding response headers to a bucket.
type UpdateKind int

const (
	// UpdateUnchanged - counters refreshed, identity unchanged
	UpdateUnchanged UpdateKind = iota

	// UpdateDisabled - the route carries no rate limit headers; the bucket
	// is inert from here on
	UpdateDisabled

	// UpdateMigrated - the server moved this route to a different bucket
	// hash; the registry must re-key before the bucket is used again
	UpdateMigrated
)

// Update is the result of Bucket.UpdateFromResponse. Migration is a routine
// re-indexing event, not an error, so it is reported as a value the caller
// consumes explicitly.
type Update struct {
	Kind    UpdateKind
	OldHash string
	NewHash string
}

// Bucket holds the rate limit state for one server-side limit group. A
// bucket is created per route template and may later be shared between
// templates once the server reveals they map to the same hash.
//
// All counter updates happen synchronously under the bucket's mutex;
// waiting happens on the gate, never while the mutex is held.
type Bucket struct {
	mu   sync.Mutex
	gate *Gate
	lag  time.Duration

	localKey   string
	serverHash string

	limit      int
	remaining  int
	resetAfter time.Duration
	lastReset  time.Time
	enabled    bool
}

// NewBucket returns an enabled bucket for the given route key. The bucket
// starts permissive (limit 1, remaining 1) and learns its real window from
// the first response.
func NewBucket(localKey string, lag time.Duration) *Bucket {
	return &Bucket{
		gate:      NewGate(),
		lag:       lag,
		localKey:  localKey,
		limit:     1,
		remaining: 1,
		enabled:   true,
	}
}

// UpdateFromResponse folds a response's rate limit headers into the bucket.
// It never blocks.
//
// Accept rules keep concurrent, possibly reordered responses from
// corrupting the window: remaining only moves down (unless already
// exhausted), resetAfter only moves up. A response without a bucket header
// disables the bucket permanently. A response carrying a different hash
// than the one already adopted reports a migration instead of mutating the
// bucket in place.
func (b *Bucket) UpdateFromResponse(h http.Header) Update {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled {
		return Update{Kind: UpdateUnchanged}
	}

	hash := h.Get(HeaderBucket)
	if hash == "" {
		log.Debug().Str("route", b.localKey).Msg("route is not rate limited, disabling bucket")
		b.enabled = false
		return Update{Kind: UpdateDisabled}
	}

	if b.serverHash == "" {
		b.serverHash = hash
	} else if b.serverHash != hash {
		return Update{Kind: UpdateMigrated, OldHash: b.serverHash, NewHash: hash}
	}

	// Globally-scoped limits do not describe this bucket's window; the
	// per-bucket headers on such a response are not meaningful.
	if IsGlobal(h) {
		return Update{Kind: UpdateUnchanged}
	}

	if v, err := strconv.Atoi(h.Get(HeaderLimit)); err == nil && v >= 1 {
		b.limit = v
	}

	remaining := 1
	if v, err := strconv.Atoi(h.Get(HeaderRemaining)); err == nil && v >= 0 {
		remaining = v
	}
	if remaining < b.remaining || b.remaining == 0 {
		b.remaining = remaining
	}

	if v, err := strconv.ParseFloat(h.Get(HeaderReset), 64); err == nil {
		b.lastReset = time.Unix(0, int64(v*float64(time.Second)))
	}

	if v, err := strconv.ParseFloat(h.Get(HeaderResetAfter), 64); err == nil {
		if d := time.Duration(v * float64(time.Second)); d > b.resetAfter {
			b.resetAfter = d + b.lag
		}
	}

	return Update{Kind: UpdateUnchanged}
}

// Acquire waits until the bucket's gate is open. With autoLock, a bucket
// known to be exhausted closes its own gate for the current reset window
// first, converting a guaranteed 429 into a local wait; remaining is then
// reset to 1 so exactly one caller probes the window after it reopens
// instead of re-triggering the closure forever. Callers that already closed
// the gate themselves (after a server-confirmed 429) pass autoLock=false.
func (b *Bucket) Acquire(ctx context.Context, autoLock bool) error {
	b.mu.Lock()
	if autoLock && b.remaining == 0 {
		log.Debug().
			Str("route", b.localKey).
			Str("bucket", b.serverHash).
			Dur("reset_after", b.resetAfter).
			Msg("bucket exhausted, auto-locking")
		b.gate.CloseFor(b.resetAfter)
		b.remaining = 1
	}
	b.mu.Unlock()

	return b.gate.Wait(ctx)
}

// LockFor closes the bucket's gate for the given duration. No-op when the
// gate is already closed.
func (b *Bucket) LockFor(d time.Duration) {
	if b.gate.IsOpen() {
		log.Debug().
			Str("route", b.localKey).
			Str("bucket", b.serverHash).
			Dur("for", d).
			Msg("locking bucket")
	}
	b.gate.CloseFor(d)
}

// Enabled reports whether the route still participates in rate limiting.
func (b *Bucket) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// ServerHash returns the bucket hash the server assigned, or "" before the
// first rate-limited response.
func (b *Bucket) ServerHash() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.serverHash
}

// LocalKey returns the route template key the bucket was created for.
func (b *Bucket) LocalKey() string {
	return b.localKey
}

// Remaining returns the requests left in the current window.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Limit returns the window size last reported by the server.
func (b *Bucket) Limit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}

// ResetAfter returns the current reset window including the configured lag.
func (b *Bucket) ResetAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resetAfter
}

// setServerHash rebinds the bucket to a new server hash. Only the registry
// calls this, while re-keying.
func (b *Bucket) setServerHash(hash string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.serverHash = hash
}
