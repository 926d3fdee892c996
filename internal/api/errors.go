// Package api implements the client for the platform's REST API, built
// around a rate limit coordination core: every request flows through the
// process-wide global gate and the per-bucket gates tracked by the
// ratelimit registry.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrJSONBodyNotAllowed is returned when a JSON body is combined with a GET
// request.
var ErrJSONBodyNotAllowed = errors.New("json body cannot be combined with a GET request")

// HTTPError is the base error for non-success responses. Body holds the
// decoded response body (a map for JSON bodies, a string otherwise).
type HTTPError struct {
	Status int
	Reason string
	Body   any
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%d", e.Status)
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if text := bodyMessage(e.Body); text != "" {
		msg += "\n" + text
	}
	return msg
}

// UnauthorizedError means the request lacked valid authentication (401).
type UnauthorizedError struct{ HTTPError }

// ForbiddenError means the authenticated caller may not access the
// resource (403).
type ForbiddenError struct{ HTTPError }

// NotFoundError means the resource does not exist (404).
type NotFoundError struct{ HTTPError }

// ServerError reports a 5xx response the client does not retry.
type ServerError struct {
	Status int
	Reason string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.Status, e.Reason)
}

// RetriesExhaustedError means every attempt was consumed without reaching a
// terminal success or failure. It is reported explicitly so callers can
// tell "gave up" apart from "succeeded with an empty body".
type RetriesExhaustedError struct {
	Method   string
	Path     string
	Attempts int
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s %s: gave up after %d attempts", e.Method, e.Path, e.Attempts)
}

// newStatusError classifies a non-success status into its error kind.
func newStatusError(status int, reason string, body any) error {
	he := HTTPError{Status: status, Reason: reason, Body: body}
	switch status {
	case http.StatusUnauthorized:
		return &UnauthorizedError{he}
	case http.StatusForbidden:
		return &ForbiddenError{he}
	case http.StatusNotFound:
		return &NotFoundError{he}
	}
	return &he
}

// IsUnauthorized reports whether err is (or wraps) an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var e *UnauthorizedError
	return errors.As(err, &e)
}

// IsForbidden reports whether err is (or wraps) a ForbiddenError.
func IsForbidden(err error) bool {
	var e *ForbiddenError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsRetriesExhausted reports whether err is (or wraps) a
// RetriesExhaustedError.
func IsRetriesExhausted(err error) bool {
	var e *RetriesExhaustedError
	return errors.As(err, &e)
}

// bodyMessage renders a readable message from a decoded error body. JSON
// error bodies carry "message", an optional numeric "code" and an optional
// nested "errors" validation payload.
func bodyMessage(body any) string {
	switch v := body.(type) {
	case string:
		return v
	case map[string]any:
		message, _ := v["message"].(string)

		var b strings.Builder
		if nested, ok := v["errors"].(map[string]any); ok {
			flat := make(map[string]string)
			flattenErrorDict(nested, "", flat)

			keys := make([]string, 0, len(flat))
			for k := range flat {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "In %s: %s\n", k, flat[k])
			}
			if b.Len() > 0 && message != "" {
				b.WriteString("\n")
			}
		}
		b.WriteString(message)

		if code, ok := v["code"].(float64); ok && code != 0 {
			fmt.Fprintf(&b, " (code: %d)", int(code))
		}
		return b.String()
	}
	return ""
}

// flattenErrorDict walks the platform's nested validation payload and
// collects the "_errors" message lists keyed by their field path.
func flattenErrorDict(d map[string]any, parent string, out map[string]string) {
	for k, v := range d {
		fullKey := parent + "/" + k

		if list, ok := v.([]any); ok && k == "_errors" {
			var msgs []string
			for _, item := range list {
				if m, ok := item.(map[string]any); ok {
					if msg, ok := m["message"].(string); ok {
						msgs = append(msgs, msg)
					}
				}
			}
			out[parent] = strings.Join(msgs, "\n")
			continue
		}

		if m, ok := v.(map[string]any); ok {
			flattenErrorDict(m, fullKey, out)
		}
	}
}
