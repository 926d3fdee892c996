package ratelimit

import (
	"sync"
	"testing"
)

// TestResolveCreatesBucketOnce verifies repeated resolves for one key
// return the same bucket.
func TestResolveCreatesBucketOnce(t *testing.T) {
	r := NewRegistry(0)

	b1, hash := r.Resolve("GET /channels/{channel_id}")
	if hash != "" {
		t.Errorf("hash = %q before any response, want empty", hash)
	}
	b2, _ := r.Resolve("GET /channels/{channel_id}")
	if b1 != b2 {
		t.Error("Resolve() returned two different buckets for one key")
	}
}

// TestConcurrentResolveSingleBucket verifies racing resolves for the same
// key never create duplicate buckets.
func TestConcurrentResolveSingleBucket(t *testing.T) {
	r := NewRegistry(0)

	const goroutines = 32
	results := make([]*Bucket, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Resolve("GET /users/@me")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d got a different bucket", i)
		}
	}
}

// TestRekeyPreservesBucketState verifies learning a hash renames the bucket
// without losing its accumulated window.
func TestRekeyPreservesBucketState(t *testing.T) {
	r := NewRegistry(0)
	localKey := "GET /channels/{channel_id}"

	b, _ := r.Resolve(localKey)
	b.UpdateFromResponse(limitHeaders("hash-a", "5", "2", "1.0"))

	rekeyed := r.Rekey(localKey, "hash-a", b)
	if rekeyed != b {
		t.Fatal("Rekey() replaced the bucket although no other route owns the hash")
	}
	if rekeyed.Remaining() != 2 {
		t.Errorf("remaining = %d after rekey, want 2", rekeyed.Remaining())
	}

	resolved, hash := r.Resolve(localKey)
	if hash != "hash-a" {
		t.Errorf("hash on record = %q, want hash-a", hash)
	}
	if resolved != b {
		t.Error("Resolve() after rekey returned a different bucket")
	}
}

// TestRekeySharedHashJoinsExistingBucket verifies two route templates the
// server maps to one hash end up on a single shared bucket.
func TestRekeySharedHashJoinsExistingBucket(t *testing.T) {
	r := NewRegistry(0)

	bucketA, _ := r.Resolve("GET /channels/{channel_id}/messages")
	bucketA.UpdateFromResponse(limitHeaders("shared", "5", "4", "1.0"))
	shared := r.Rekey("GET /channels/{channel_id}/messages", "shared", bucketA)

	bucketB, _ := r.Resolve("POST /channels/{channel_id}/messages")
	bucketB.UpdateFromResponse(limitHeaders("shared", "5", "3", "1.0"))
	joined := r.Rekey("POST /channels/{channel_id}/messages", "shared", bucketB)

	if joined != shared {
		t.Fatal("second route did not join the existing bucket for the shared hash")
	}

	// Subsequent resolves for both templates converge on the shared bucket.
	got, _ := r.Resolve("POST /channels/{channel_id}/messages")
	if got != shared {
		t.Error("Resolve() after join returned the abandoned bucket")
	}
}

// TestRekeyMigrationToFreshHash verifies a hash change re-keys the same
// bucket when the new hash is unclaimed.
func TestRekeyMigrationToFreshHash(t *testing.T) {
	r := NewRegistry(0)
	localKey := "DELETE /channels/{channel_id}/messages/{message_id}"

	b, _ := r.Resolve(localKey)
	b.UpdateFromResponse(limitHeaders("hash-old", "5", "4", "1.0"))
	r.Rekey(localKey, "hash-old", b)

	upd := b.UpdateFromResponse(limitHeaders("hash-new", "5", "4", "1.0"))
	if upd.Kind != UpdateMigrated {
		t.Fatalf("Update.Kind = %v, want UpdateMigrated", upd.Kind)
	}

	migrated := r.Rekey(localKey, upd.NewHash, b)
	if migrated != b {
		t.Error("migration to an unclaimed hash should keep the same bucket")
	}
	if migrated.ServerHash() != "hash-new" {
		t.Errorf("ServerHash() = %q after migration, want hash-new", migrated.ServerHash())
	}

	resolved, hash := r.Resolve(localKey)
	if hash != "hash-new" || resolved != b {
		t.Error("Resolve() after migration did not return the re-keyed bucket")
	}
}

// TestRekeyMigrationReleasesOldHash verifies a migrated bucket no longer
// answers for its previous hash: a route learning that hash later keeps its
// own bucket instead of joining one that reports a migration on every
// response.
func TestRekeyMigrationReleasesOldHash(t *testing.T) {
	r := NewRegistry(0)

	b, _ := r.Resolve("GET /channels/{channel_id}")
	b.UpdateFromResponse(limitHeaders("hash-old", "5", "4", "1.0"))
	r.Rekey("GET /channels/{channel_id}", "hash-old", b)
	r.Rekey("GET /channels/{channel_id}", "hash-new", b)

	other, _ := r.Resolve("GET /users/{user_id}")
	other.UpdateFromResponse(limitHeaders("hash-old", "5", "4", "1.0"))
	got := r.Rekey("GET /users/{user_id}", "hash-old", other)
	if got != other {
		t.Fatal("route joined the migrated-away bucket for the old hash")
	}
	if got.ServerHash() != "hash-old" {
		t.Errorf("ServerHash() = %q, want hash-old", got.ServerHash())
	}

	upd := got.UpdateFromResponse(limitHeaders("hash-old", "5", "3", "1.0"))
	if upd.Kind != UpdateUnchanged {
		t.Errorf("Update.Kind = %v, want UpdateUnchanged", upd.Kind)
	}
}

// TestRekeyRaceConvergesOnOneBucket verifies concurrent rekeys for routes
// sharing a hash never leave two live buckets for one limit group.
func TestRekeyRaceConvergesOnOneBucket(t *testing.T) {
	r := NewRegistry(0)

	const goroutines = 16
	results := make([]*Bucket, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "GET /guilds/{guild_id}"
			b, _ := r.Resolve(key)
			results[i] = r.Rekey(key, "contended", b)
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d ended on a different bucket", i)
		}
	}
}
