package api

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chordhq/chord/internal/constants"
	"github.com/chordhq/chord/internal/ratelimit"
)

// Transport dispatches a single HTTP exchange. Implementations return the
// response for any status code and reserve errors for failures to obtain a
// response at all (connection refused, timeout, etc). Rate-limit headers
// must be passed through verbatim.
type Transport interface {
	Send(ctx context.Context, method, url string, body []byte, header nethttp.Header) (*Response, error)
}

// Response is the transport-level view of one HTTP exchange.
type Response struct {
	Status      int
	Reason      string
	Header      nethttp.Header
	Body        []byte
	ContentType string
}

// Client coordinates requests against the API: every call waits on the
// process-wide global gate, then on the gate of the bucket its route
// resolves to, and feeds the response headers back into the registry. All
// shared state lives on the client, so independent clients never interfere.
type Client struct {
	transport   Transport
	baseURL     string
	token       string
	userAgent   string
	maxRetries  int
	backoffUnit time.Duration
	registry    *ratelimit.Registry
	global      *ratelimit.Gate
	log         zerolog.Logger
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithMaxRetries caps the attempts per logical request.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBucketLag sets the safety margin added on top of server-reported
// reset windows.
func WithBucketLag(lag time.Duration) Option {
	return func(c *Client) {
		c.registry = ratelimit.NewRegistry(lag)
	}
}

// WithBackoffUnit scales the transient-error backoff. The default is one
// second; tests compress it.
func WithBackoffUnit(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffUnit = d
		}
	}
}

// WithUserAgent overrides the User-Agent sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger routes the client's logs to the given logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// NewClient builds a client for the API at baseURL. The token, when set, is
// sent verbatim in the Authorization header.
func NewClient(transport Transport, baseURL, token string, opts ...Option) *Client {
	c := &Client{
		transport:   transport,
		baseURL:     baseURL,
		token:       token,
		userAgent:   constants.DefaultUserAgent,
		maxRetries:  constants.DefaultMaxRetries,
		backoffUnit: time.Second,
		registry:    ratelimit.NewRegistry(ratelimit.DefaultLag),
		global:      ratelimit.NewGate(),
		log:         log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request performs one logical API call against the route, retrying through
// rate limits and transient server errors up to the retry cap. A non-nil
// payload is JSON-encoded as the request body and is rejected on GET. The
// returned value is the decoded JSON body, the raw text for non-JSON
// responses, or nil for empty bodies.
func (c *Client) Request(ctx context.Context, r Route, payload any) (any, error) {
	header := nethttp.Header{}
	header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		header.Set("Authorization", c.token)
	}

	var body []byte
	if payload != nil {
		if r.Method == nethttp.MethodGet {
			return nil, ErrJSONBodyNotAllowed
		}
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		header.Set("Content-Type", "application/json")
	}

	logger := c.log.With().
		Str("request_id", uuid.NewString()).
		Str("route", r.Key()).
		Logger()
	url := r.URL(c.baseURL)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.global.Wait(ctx); err != nil {
			return nil, err
		}

		bucket, knownHash := c.registry.Resolve(r.Key())
		if bucket.Enabled() {
			if err := bucket.Acquire(ctx, true); err != nil {
				return nil, err
			}
		}

		logger.Debug().Int("attempt", attempt+1).Msg("dispatching request")
		resp, err := c.transport.Send(ctx, r.Method, url, body, header)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
		}

		bucket = c.applyRateLimit(logger, r, bucket, knownHash, resp.Header)

		// Start the reset window at response time, so the next caller
		// on an exhausted bucket waits here instead of earning a 429.
		// Not on a 429: its branch closes the gate from Retry-After,
		// and an earlier closure here would win over the server's value.
		if resp.Status != nethttp.StatusTooManyRequests &&
			bucket.Enabled() && bucket.Remaining() == 0 {
			bucket.LockFor(bucket.ResetAfter())
		}

		switch {
		case resp.Status == nethttp.StatusNoContent:
			return nil, nil

		case resp.Status >= 200 && resp.Status < 300:
			decoded, err := decodeBody(resp.ContentType, resp.Body)
			if err != nil {
				return nil, fmt.Errorf("decoding response body: %w", err)
			}
			return decoded, nil

		case resp.Status == nethttp.StatusTooManyRequests:
			retryAfter, ok := ratelimit.RetryAfterIn(resp.Header)
			if !ok {
				retryAfter = bucket.ResetAfter()
			}
			if ratelimit.IsGlobal(resp.Header) {
				logger.Warn().Dur("retry_after", retryAfter).Msg("hit the global rate limit")
				c.global.CloseFor(retryAfter)
				if err := c.global.Wait(ctx); err != nil {
					return nil, err
				}
			} else {
				logger.Warn().Dur("retry_after", retryAfter).Msg("rate limited on bucket")
				bucket.LockFor(retryAfter)
				if err := bucket.Acquire(ctx, false); err != nil {
					return nil, err
				}
			}

		case resp.Status >= 400 && resp.Status < 500:
			decoded, derr := decodeBody(resp.ContentType, resp.Body)
			if derr != nil {
				decoded = string(resp.Body)
			}
			return nil, newStatusError(resp.Status, resp.Reason, decoded)

		case resp.Status == nethttp.StatusInternalServerError ||
			resp.Status == nethttp.StatusBadGateway:
			delay := time.Duration(2*attempt+1) * c.backoffUnit
			logger.Warn().
				Int("status", resp.Status).
				Dur("backoff", delay).
				Msg("transient server error, backing off")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case resp.Status >= 500:
			return nil, &ServerError{Status: resp.Status, Reason: resp.Reason}

		default:
			// 1xx/3xx are never expected from this API; report rather
			// than loop on them.
			decoded, _ := decodeBody(resp.ContentType, resp.Body)
			return nil, newStatusError(resp.Status, resp.Reason, decoded)
		}
	}

	logger.Error().Int("attempts", c.maxRetries).Msg("request gave up")
	return nil, &RetriesExhaustedError{Method: r.Method, Path: r.Path, Attempts: c.maxRetries}
}

// applyRateLimit feeds the response headers into the route's bucket and
// re-keys the registry entry when the server hash was learned or changed.
// It returns the bucket the route maps to afterwards, which may be an
// existing bucket shared with other route templates.
func (c *Client) applyRateLimit(logger zerolog.Logger, r Route, bucket *ratelimit.Bucket, knownHash string, h nethttp.Header) *ratelimit.Bucket {
	upd := bucket.UpdateFromResponse(h)
	switch upd.Kind {
	case ratelimit.UpdateMigrated:
		logger.Debug().
			Str("old_hash", upd.OldHash).
			Str("new_hash", upd.NewHash).
			Msg("bucket migrated")
		bucket = c.registry.Rekey(r.Key(), upd.NewHash, bucket)
		bucket.UpdateFromResponse(h)
	case ratelimit.UpdateDisabled:
		logger.Debug().Msg("route is unmetered, bucket disabled")
	default:
		if hash := bucket.ServerHash(); hash != "" && hash != knownHash {
			bucket = c.registry.Rekey(r.Key(), hash, bucket)
		}
	}
	return bucket
}
