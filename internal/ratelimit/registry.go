package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry maps routes to live buckets. Before the server has assigned a
// hash, a route is keyed by its local template key alone; afterwards by
// "{hash}:{localKey}". The registry guarantees exactly one live bucket per
// route key at any instant, including while concurrent requests race a
// migration.
//
// Buckets are never destroyed. A superseded bucket simply becomes
// unreachable through Resolve.
type Registry struct {
	mu  sync.Mutex
	lag time.Duration

	// hashes records the server hash learned for each local key.
	hashes map[string]string

	// buckets is keyed by composite key ("{hash}:{localKey}" once the hash
	// is known, plain localKey before).
	buckets map[string]*Bucket

	// byHash tracks the live bucket per server hash so that route templates
	// the server maps to one limit group end up sharing a single bucket.
	byHash map[string]*Bucket
}

// NewRegistry returns an empty registry. New buckets are created with the
// given lag.
func NewRegistry(lag time.Duration) *Registry {
	return &Registry{
		lag:     lag,
		hashes:  make(map[string]string),
		buckets: make(map[string]*Bucket),
		byHash:  make(map[string]*Bucket),
	}
}

// Resolve returns the live bucket for a route key, creating one when the
// key is seen for the first time, along with the server hash currently on
// record for the key. Concurrent calls for the same key always observe the
// same bucket.
func (r *Registry) Resolve(localKey string) (*Bucket, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := r.hashes[localKey]
	key := compositeKey(hash, localKey)

	bucket, ok := r.buckets[key]
	if !ok {
		bucket = NewBucket(localKey, r.lag)
		r.buckets[key] = bucket
	}
	return bucket, hash
}

// Rekey records that localKey is governed by serverHash and returns the
// bucket the route must use from now on.
//
// When another route already discovered the same hash, its bucket is the
// authoritative one for the shared limit group: the caller's bucket is
// abandoned and the existing bucket returned. Otherwise the caller's bucket
// keeps its accumulated state and is re-registered under the new composite
// key. Both paths are atomic with respect to concurrent Resolve calls.
func (r *Registry) Rekey(localKey, serverHash string, bucket *Bucket) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hashes[localKey] = serverHash
	key := compositeKey(serverHash, localKey)

	if existing, ok := r.byHash[serverHash]; ok && existing != bucket {
		log.Debug().
			Str("route", localKey).
			Str("bucket", serverHash).
			Msg("route joins an already-known bucket")
		r.buckets[key] = existing
		return existing
	}

	// On migration the bucket leaves its old hash behind; the index entry
	// must go with it, or a route learning the old hash later would join a
	// bucket that no longer answers to it.
	if prev := bucket.ServerHash(); prev != "" && prev != serverHash && r.byHash[prev] == bucket {
		delete(r.byHash, prev)
	}

	bucket.setServerHash(serverHash)
	r.byHash[serverHash] = bucket
	r.buckets[key] = bucket
	return bucket
}

func compositeKey(serverHash, localKey string) string {
	if serverHash == "" {
		return localKey
	}
	return serverHash + ":" + localKey
}
