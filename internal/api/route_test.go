package api

import (
	"net/url"
	"testing"
)

// TestRouteKeyStableAcrossParams verifies parameterized calls share one
// bucket key.
func TestRouteKeyStableAcrossParams(t *testing.T) {
	a := NewRoute("get", "/channels/{channel_id}", "channel_id", "111")
	b := NewRoute("GET", "/channels/{channel_id}", "channel_id", "222")

	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() != "GET /channels/{channel_id}" {
		t.Errorf("Key() = %q", a.Key())
	}
}

// TestRouteURL verifies placeholder substitution and escaping.
func TestRouteURL(t *testing.T) {
	r := NewRoute("GET", "/users/{user_id}/notes/{note}", "user_id", "42", "note", "a b/c")

	got := r.URL("https://api.example.com/")
	want := "https://api.example.com/users/42/notes/a%20b%2Fc"
	if got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

// TestRouteURLWithQuery verifies query values are appended encoded and do
// not affect the bucket key.
func TestRouteURLWithQuery(t *testing.T) {
	r := NewRoute("GET", "/channels/{id}/messages", "id", "7")
	r.Query = url.Values{"limit": {"50"}, "after": {"1234"}}

	got := r.URL("https://api.example.com")
	want := "https://api.example.com/channels/7/messages?after=1234&limit=50"
	if got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
	if r.Key() != "GET /channels/{id}/messages" {
		t.Errorf("Key() = %q, query must not leak into the bucket key", r.Key())
	}
}
