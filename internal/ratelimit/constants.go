package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Rate limit response headers surfaced by the platform. The bucket header is
// the authoritative grouping identity; its absence means the route carries no
// rate limits at all.
const (
	// HeaderBucket - server-assigned bucket hash for the route
	HeaderBucket = "X-RateLimit-Bucket"

	// HeaderGlobal - "true" when the limit applies API-wide, not per-bucket
	HeaderGlobal = "X-RateLimit-Global"

	// HeaderLimit - total requests allowed in the current window
	HeaderLimit = "X-RateLimit-Limit"

	// HeaderRemaining - requests left in the current window
	HeaderRemaining = "X-RateLimit-Remaining"

	// HeaderReset - epoch timestamp (fractional seconds) when the window resets
	HeaderReset = "X-RateLimit-Reset"

	// HeaderResetAfter - seconds (fractional) until the window resets
	HeaderResetAfter = "X-RateLimit-Reset-After"

	// HeaderRetryAfter - seconds to wait, sent alongside 429 responses
	HeaderRetryAfter = "Retry-After"
)

// DefaultLag is the safety margin added on top of server-reported reset
// windows. Clock skew between client and server makes the reported window
// slightly optimistic; waiting a little longer avoids a 429 right at the
// window edge.
const DefaultLag = 200 * time.Millisecond

// IsGlobal reports whether the response headers mark the rate limit as
// API-wide rather than scoped to a single bucket.
func IsGlobal(h http.Header) bool {
	global, err := strconv.ParseBool(h.Get(HeaderGlobal))
	return err == nil && global
}

// RetryAfterIn returns the Retry-After duration from a 429 response.
// The second return value is false when the header is missing or malformed.
func RetryAfterIn(h http.Header) (time.Duration, bool) {
	seconds, err := strconv.ParseFloat(h.Get(HeaderRetryAfter), 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
