package constants

import (
	"time"
)

// Application identity
const (
	// AppName - canonical name used in logs and config paths
	AppName = "chord"

	// DefaultUserAgent - User-Agent header sent with every API request
	DefaultUserAgent = "chord (https://github.com/chordhq/chord)"
)

// Request coordination
const (
	// DefaultMaxRetries - attempts per logical API request before giving up
	// Covers rate-limit retries and transient 500/502 retries alike
	DefaultMaxRetries = 5

	// APIContextTimeout - default timeout for one logical API operation (30 seconds)
	APIContextTimeout = 30 * time.Second

	// APIConnectionTestTimeout - timeout for connectivity checks such as
	// proxy warmup (10 seconds)
	APIConnectionTestTimeout = 10 * time.Second
)

// Transport retry configuration
// These govern the low-level retry of network failures only; HTTP status
// handling (429, 5xx) lives in the request coordinator.
const (
	// TransportRetryMax - maximum low-level retries for network errors
	TransportRetryMax = 3

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	RetryMaxDelay = 15 * time.Second
)

// HTTP client timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second
)
