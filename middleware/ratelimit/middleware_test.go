package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"accessrl/middleware/ratelimit/application"
	"accessrl/middleware/ratelimit/domain"
)

type stubStore struct {
	result domain.StoreResult
	err    error
}

func (s stubStore) Evaluate(context.Context, domain.StoreRequest) (domain.StoreResult, error) {
	return s.result, s.err
}

func newHandler(t *testing.T, store domain.Store, policy *domain.Policy, opts Options) http.Handler {
	t.Helper()
	provider := application.NewPolicyProvider(nil)
	if err := provider.Publish(map[string]*domain.Policy{policy.Name: policy}, policy.Name); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	opts.Driver = &application.Driver{Provider: provider, Store: store}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return Middleware(opts)(next)
}

func TestMiddleware_AllowedRequestReachesNextHandler(t *testing.T) {
	store := stubStore{result: domain.StoreResult{Allowed: true, RemainingTokens: 9, ResetAfterSeconds: 60}}
	policy := &domain.Policy{Name: "default", Limit: 10, Window: time.Minute, Enabled: true}
	h := newHandler(t, store, policy, Options{AddRateLimitHeaders: true})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "9" {
		t.Fatalf("expected remaining header 9, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestMiddleware_DeniedRequestReturns429WithRetryAfter(t *testing.T) {
	store := stubStore{result: domain.StoreResult{Allowed: false, RetryAfterSeconds: 5}}
	policy := &domain.Policy{Name: "default", Limit: 10, Window: time.Minute, Enabled: true}
	h := newHandler(t, store, policy, Options{
		DefaultRejectionBody: application.RejectionBody{ContentType: "text/plain", Body: []byte("slow down")},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "5" {
		t.Fatalf("expected Retry-After 5, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Body.String() != "slow down" {
		t.Fatalf("expected body %q, got %q", "slow down", rec.Body.String())
	}
}

func TestMiddleware_BypassesWhenNoPolicyConfigured(t *testing.T) {
	store := stubStore{}
	provider := application.NewPolicyProvider(nil)
	driver := &application.Driver{Provider: provider, Store: store}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := Middleware(Options{Driver: driver})(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected bypass to reach next handler (418), got %d", rec.Code)
	}
}

func TestMiddleware_FailClosedStoreErrorReturns500(t *testing.T) {
	store := stubStore{err: errBoom{}}
	policy := &domain.Policy{Name: "default", Limit: 10, Window: time.Minute, Enabled: true, FailClosed: true}
	h := newHandler(t, store, policy, Options{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
