package api

import (
	"net/url"
	"strings"
)

// Route describes one API endpoint call. Path is a template with {param}
// placeholders; Params carries the values substituted into it. The bucket
// key is derived from the template, not the instantiated path, so
// parameterized calls ("get message N") share one bucket until the server
// says otherwise.
type Route struct {
	Method string
	Path   string
	Params map[string]string
	Query  url.Values
}

// NewRoute builds a route from a method and a path template. Params are
// given as alternating name/value pairs.
func NewRoute(method, path string, params ...string) Route {
	r := Route{Method: strings.ToUpper(method), Path: path}
	if len(params) > 0 {
		r.Params = make(map[string]string, len(params)/2)
		for i := 0; i+1 < len(params); i += 2 {
			r.Params[params[i]] = params[i+1]
		}
	}
	return r
}

// Key returns the template-level bucket key. It is stable across parameter
// substitution.
func (r Route) Key() string {
	return r.Method + " " + r.Path
}

// URL returns the fully-instantiated request URL under the given base.
// Parameter values are path-escaped; query values, when present, are
// appended encoded.
func (r Route) URL(base string) string {
	path := r.Path
	for name, value := range r.Params {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	full := strings.TrimSuffix(base, "/") + path
	if len(r.Query) > 0 {
		full += "?" + r.Query.Encode()
	}
	return full
}
