package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"
)

// limitHeaders builds a typical rate-limited response header set.
func limitHeaders(bucket, limit, remaining, resetAfter string) http.Header {
	h := http.Header{}
	h.Set(HeaderBucket, bucket)
	h.Set(HeaderLimit, limit)
	h.Set(HeaderRemaining, remaining)
	h.Set(HeaderReset, "1700000000.000")
	h.Set(HeaderResetAfter, resetAfter)
	return h
}

// TestUpdateAdoptsServerHash verifies the first response binds the bucket
// to its server hash.
func TestUpdateAdoptsServerHash(t *testing.T) {
	b := NewBucket("GET /channels/{channel_id}", 0)

	upd := b.UpdateFromResponse(limitHeaders("abc123", "5", "4", "1.0"))
	if upd.Kind != UpdateUnchanged {
		t.Fatalf("Update.Kind = %v, want UpdateUnchanged", upd.Kind)
	}
	if b.ServerHash() != "abc123" {
		t.Errorf("ServerHash() = %q, want %q", b.ServerHash(), "abc123")
	}
	if b.Limit() != 5 || b.Remaining() != 4 {
		t.Errorf("limit/remaining = %d/%d, want 5/4", b.Limit(), b.Remaining())
	}
}

// TestUpdateDisablesUnmeteredRoute verifies a response without a bucket
// header permanently disables the bucket.
func TestUpdateDisablesUnmeteredRoute(t *testing.T) {
	b := NewBucket("GET /gateway", 0)

	upd := b.UpdateFromResponse(http.Header{})
	if upd.Kind != UpdateDisabled {
		t.Fatalf("Update.Kind = %v, want UpdateDisabled", upd.Kind)
	}
	if b.Enabled() {
		t.Error("bucket should be disabled")
	}

	// Later responses must not resurrect it.
	upd = b.UpdateFromResponse(limitHeaders("abc123", "5", "0", "2.0"))
	if upd.Kind != UpdateUnchanged {
		t.Errorf("disabled bucket reported %v, want UpdateUnchanged", upd.Kind)
	}
	if b.Remaining() != 1 {
		t.Errorf("disabled bucket was updated: remaining = %d", b.Remaining())
	}
}

// TestUpdateReportsMigration verifies a hash change is signalled, not
// applied in place.
func TestUpdateReportsMigration(t *testing.T) {
	b := NewBucket("GET /users/{user_id}", 0)
	b.UpdateFromResponse(limitHeaders("old-hash", "5", "4", "1.0"))

	upd := b.UpdateFromResponse(limitHeaders("new-hash", "3", "2", "1.0"))
	if upd.Kind != UpdateMigrated {
		t.Fatalf("Update.Kind = %v, want UpdateMigrated", upd.Kind)
	}
	if upd.OldHash != "old-hash" || upd.NewHash != "new-hash" {
		t.Errorf("migration %q -> %q, want old-hash -> new-hash", upd.OldHash, upd.NewHash)
	}
	if b.ServerHash() != "old-hash" {
		t.Errorf("bucket mutated its own hash to %q during migration", b.ServerHash())
	}
	if b.Limit() != 5 {
		t.Errorf("migration applied counters from the foreign response: limit = %d", b.Limit())
	}
}

// TestUpdateSkipsCountersOnGlobalLimit verifies globally-scoped responses
// leave the per-bucket window untouched.
func TestUpdateSkipsCountersOnGlobalLimit(t *testing.T) {
	b := NewBucket("POST /channels/{channel_id}/messages", 0)
	b.UpdateFromResponse(limitHeaders("abc123", "5", "4", "1.0"))

	h := limitHeaders("abc123", "1", "0", "9.0")
	h.Set(HeaderGlobal, "true")
	b.UpdateFromResponse(h)

	if b.Limit() != 5 || b.Remaining() != 4 {
		t.Errorf("global response updated counters: limit/remaining = %d/%d, want 5/4",
			b.Limit(), b.Remaining())
	}
}

// TestRemainingMonotonicUnderReordering verifies out-of-order responses
// cannot inflate the remaining count.
func TestRemainingMonotonicUnderReordering(t *testing.T) {
	b := NewBucket("GET /channels/{channel_id}", 0)

	b.UpdateFromResponse(limitHeaders("abc", "5", "2", "1.0"))
	b.UpdateFromResponse(limitHeaders("abc", "5", "4", "1.0")) // stale, arrives late
	if b.Remaining() != 2 {
		t.Errorf("stale response inflated remaining to %d, want 2", b.Remaining())
	}

	b.UpdateFromResponse(limitHeaders("abc", "5", "0", "1.0"))
	if b.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", b.Remaining())
	}

	// Once exhausted, a fresher window may raise it again.
	b.UpdateFromResponse(limitHeaders("abc", "5", "5", "1.0"))
	if b.Remaining() != 5 {
		t.Errorf("post-exhaustion refresh gave remaining = %d, want 5", b.Remaining())
	}
}

// TestResetAfterMonotonicWithLag verifies the reset window only grows and
// carries the configured lag.
func TestResetAfterMonotonicWithLag(t *testing.T) {
	lag := 200 * time.Millisecond
	b := NewBucket("GET /channels/{channel_id}", lag)

	b.UpdateFromResponse(limitHeaders("abc", "5", "4", "2.0"))
	want := 2*time.Second + lag
	if b.ResetAfter() != want {
		t.Fatalf("ResetAfter() = %v, want %v", b.ResetAfter(), want)
	}

	// A smaller window from a reordered response is rejected.
	b.UpdateFromResponse(limitHeaders("abc", "5", "3", "1.0"))
	if b.ResetAfter() != want {
		t.Errorf("stale response shrank the window to %v, want %v", b.ResetAfter(), want)
	}
}

// TestAcquireAutoLocksWhenExhausted verifies an exhausted bucket closes its
// own gate for the reset window and lets exactly one caller probe after the
// reopen.
func TestAcquireAutoLocksWhenExhausted(t *testing.T) {
	b := NewBucket("GET /channels/{channel_id}", 0)
	b.UpdateFromResponse(limitHeaders("abc", "5", "0", "0.05"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := b.Acquire(ctx, true); err != nil {
		t.Fatalf("Acquire() returned error: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 30*time.Millisecond || elapsed > 300*time.Millisecond {
		t.Errorf("Acquire() waited %v, expected ~50ms", elapsed)
	}
	if b.Remaining() != 1 {
		t.Errorf("remaining = %d after auto-lock, want 1 (probe allowance)", b.Remaining())
	}

	// The probe allowance means the next acquire goes straight through.
	start = time.Now()
	if err := b.Acquire(ctx, true); err != nil {
		t.Fatalf("second Acquire() returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("second Acquire() blocked for %v, expected immediate", elapsed)
	}
}

// TestAcquireWithoutAutoLock verifies autoLock=false skips the proactive
// closure even when the bucket looks exhausted.
func TestAcquireWithoutAutoLock(t *testing.T) {
	b := NewBucket("GET /channels/{channel_id}", 0)
	b.UpdateFromResponse(limitHeaders("abc", "5", "0", "5.0"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := b.Acquire(ctx, false); err != nil {
		t.Errorf("Acquire(autoLock=false) on open gate returned error: %v", err)
	}
	if b.Remaining() != 0 {
		t.Errorf("Acquire(autoLock=false) touched remaining: %d", b.Remaining())
	}
}

// TestLockForDelegatesToGate verifies LockFor closes the gate for the given
// duration.
func TestLockForDelegatesToGate(t *testing.T) {
	b := NewBucket("GET /channels/{channel_id}", 0)
	b.LockFor(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := b.Acquire(ctx, false); err != nil {
		t.Fatalf("Acquire() returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("LockFor() did not close the gate: acquired after %v", elapsed)
	}
}
