package application

import (
	"testing"
	"time"

	"accessrl/middleware/ratelimit/domain"
)

func TestShape_AllowedWithoutHeaders(t *testing.T) {
	resp := Shape(domain.Decision{Allowed: true}, ShaperOptions{AddHeaders: false})
	if resp.Status != statusOK || len(resp.Headers) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestShape_AllowedWithHeaders(t *testing.T) {
	decision := domain.Decision{Allowed: true, EffectiveLimit: 100, Remaining: 42, Reset: time.Unix(1000, 0)}
	resp := Shape(decision, ShaperOptions{AddHeaders: true})

	if resp.Status != statusOK {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	want := map[string]string{
		"X-RateLimit-Limit":     "100",
		"X-RateLimit-Remaining": "42",
		"X-RateLimit-Reset":     "1000",
	}
	for _, h := range resp.Headers {
		if want[h.Name] != h.Value {
			t.Fatalf("header %s: got %q, want %q", h.Name, h.Value, want[h.Name])
		}
	}
}

func TestShape_DeniedAlwaysIncludesRetryAfterAndHeaders(t *testing.T) {
	decision := domain.Decision{Allowed: false, RetryAfter: 30500 * time.Millisecond, EffectiveLimit: 10, Remaining: 0}
	resp := Shape(decision, ShaperOptions{AddHeaders: false})

	if resp.Status != statusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Status)
	}
	var retryAfter string
	for _, h := range resp.Headers {
		if h.Name == "Retry-After" {
			retryAfter = h.Value
		}
	}
	if retryAfter != "31" {
		t.Fatalf("expected Retry-After 31 (ceiling of 30.5s), got %q", retryAfter)
	}
}

func TestShape_OnRejectedWinsOverDefaultBody(t *testing.T) {
	decision := domain.Decision{Allowed: false}
	resp := Shape(decision, ShaperOptions{
		DefaultRejectionBody: RejectionBody{ContentType: "text/plain", Body: []byte("default")},
		OnRejected: func(domain.Decision) RejectionBody {
			return RejectionBody{ContentType: "application/json", Body: []byte(`{"error":"rate limited"}`)}
		},
	})

	if resp.Body.ContentType != "application/json" {
		t.Fatalf("expected OnRejected body to win, got %+v", resp.Body)
	}
}

func TestShape_DefaultBodyUsedWithoutOnRejected(t *testing.T) {
	decision := domain.Decision{Allowed: false}
	resp := Shape(decision, ShaperOptions{
		DefaultRejectionBody: RejectionBody{ContentType: "text/plain", Body: []byte("slow down")},
	})

	if string(resp.Body.Body) != "slow down" {
		t.Fatalf("expected default body, got %+v", resp.Body)
	}
}
