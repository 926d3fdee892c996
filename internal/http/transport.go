package http

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chordhq/chord/internal/api"
	"github.com/chordhq/chord/internal/config"
	"github.com/chordhq/chord/internal/constants"
)

// Transport dispatches API requests over a proxy-aware client, retrying
// network failures transparently. Status-code handling (429, 5xx) is not
// its business; the request coordinator owns that policy.
type Transport struct {
	client *retryablehttp.Client
}

// NewTransport builds the transport for the configured proxy mode.
func NewTransport(cfg *config.Config) (*Transport, error) {
	base, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = constants.TransportRetryMax
	rc.RetryWaitMin = constants.RetryInitialDelay
	rc.RetryWaitMax = constants.RetryMaxDelay
	rc.Logger = &retryLogger{log: log.Logger}
	rc.CheckRetry = retryNetworkErrorsOnly

	return &Transport{client: rc}, nil
}

// retryNetworkErrorsOnly retries only failures to obtain a response at all.
// Any response, whatever its status, is handed back untouched.
func retryNetworkErrorsOnly(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return false, nil
}

// Send performs one HTTP exchange and drains the body. Rate-limit headers
// pass through verbatim on the returned response.
func (t *Transport) Send(ctx context.Context, method, url string, body []byte, header nethttp.Header) (*api.Response, error) {
	var rawBody any
	if len(body) > 0 {
		rawBody = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, rawBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for name, values := range header {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &api.Response{
		Status:      resp.StatusCode,
		Reason:      reasonPhrase(resp.Status, resp.StatusCode),
		Header:      resp.Header,
		Body:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// reasonPhrase strips the numeric code from a status line like
// "404 Not Found".
func reasonPhrase(status string, code int) string {
	return strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
}

// retryLogger adapts zerolog to retryablehttp's leveled logger.
type retryLogger struct {
	log zerolog.Logger
}

func (l *retryLogger) Error(msg string, kv ...any) { l.emit(l.log.Error(), msg, kv) }
func (l *retryLogger) Warn(msg string, kv ...any)  { l.emit(l.log.Warn(), msg, kv) }
func (l *retryLogger) Info(msg string, kv ...any)  { l.emit(l.log.Info(), msg, kv) }
func (l *retryLogger) Debug(msg string, kv ...any) { l.emit(l.log.Debug(), msg, kv) }

func (l *retryLogger) emit(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			e = e.Interface(key, kv[i+1])
		}
	}
	e.Msg(msg)
}
