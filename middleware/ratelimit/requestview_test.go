package ratelimit

import (
	"net/http/httptest"
	"testing"

	"accessrl/middleware/ratelimit/domain"
)

func TestHTTPRequestView_HeaderAndRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Api-Key", "secret")
	req.RemoteAddr = "203.0.113.9:4000"

	view := newRequestView(req)
	if got := view.Header("X-Api-Key"); got != "secret" {
		t.Fatalf("got %q, want %q", got, "secret")
	}
	if got := view.RemoteAddr(); got != "203.0.113.9:4000" {
		t.Fatalf("got %q, want %q", got, "203.0.113.9:4000")
	}
	if _, ok := view.Principal(); ok {
		t.Fatalf("expected no principal on a bare request")
	}
}

func TestHTTPRequestView_PrincipalFromContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	ctx := domain.ContextWithPrincipal(req.Context(), testPrincipal{})
	req = req.WithContext(ctx)

	view := newRequestView(req)
	p, ok := view.Principal()
	if !ok || p == nil {
		t.Fatalf("expected a principal to be present")
	}
}

type testPrincipal struct{}

func (testPrincipal) IsAuthenticated() bool               { return true }
func (testPrincipal) Claim(string) (string, bool) { return "", false }
