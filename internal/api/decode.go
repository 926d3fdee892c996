package api

import (
	"encoding/json"
	"strings"
)

// decodeBody turns a response body into the value handed to callers: a
// decoded JSON value when the content type says JSON, the raw text
// otherwise, and nil for an empty body.
func decodeBody(contentType string, body []byte) (any, error) {
	if len(body) == 0 {
		return nil, nil
	}
	if isJSON(contentType) {
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return string(body), nil
}

func isJSON(contentType string) bool {
	mediaType := contentType
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.TrimSpace(strings.ToLower(mediaType)) == "application/json"
}
