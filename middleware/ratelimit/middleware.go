package ratelimit

import (
	"errors"
	"net/http"

	"accessrl/middleware/ratelimit/application"
	"accessrl/middleware/ratelimit/domain"
)

// Options configures the HTTP adapter. Driver is required; everything
// else has a workable default.
type Options struct {
	Driver *application.Driver

	// AddRateLimitHeaders attaches X-RateLimit-* on allowed responses
	// too, not just denials (denials always carry them).
	AddRateLimitHeaders bool

	DefaultRejectionBody application.RejectionBody
	// OnRejected, when set, computes the denial body instead of
	// DefaultRejectionBody (spec §4.E).
	OnRejected func(domain.Decision) application.RejectionBody

	// OnInfraError handles a Decide failure that wasn't a policy
	// bypass (a fail-closed store error or a store protocol
	// violation). The default responds 500 with a short plain-text
	// message, never a 429: the failure is not interpreted as a
	// limit.
	OnInfraError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware wraps next with the full Decision Driver + Response
// Shaper pipeline (spec §4.C-E). Header writes always precede any body
// write.
func Middleware(opts Options) func(http.Handler) http.Handler {
	if opts.Driver == nil {
		panic("ratelimit: Middleware requires a non-nil Driver")
	}
	if opts.OnInfraError == nil {
		opts.OnInfraError = defaultInfraErrorHandler
	}

	shaperOpts := application.ShaperOptions{
		AddHeaders:           opts.AddRateLimitHeaders,
		DefaultRejectionBody: opts.DefaultRejectionBody,
		OnRejected:           opts.OnRejected,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			view := newRequestView(r)

			result, err := opts.Driver.Decide(r.Context(), view)
			if err != nil {
				opts.OnInfraError(w, r, err)
				return
			}
			if result.Bypassed {
				next.ServeHTTP(w, r)
				return
			}

			shaped := application.Shape(result.Decision, shaperOpts)
			for _, h := range shaped.Headers {
				w.Header().Set(h.Name, h.Value)
			}

			if shaped.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			if shaped.Body.ContentType != "" {
				w.Header().Set("Content-Type", shaped.Body.ContentType)
			}
			w.WriteHeader(shaped.Status)
			if len(shaped.Body.Body) > 0 {
				_, _ = w.Write(shaped.Body.Body)
			}
		})
	}
}

func defaultInfraErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	var protoErr *domain.StoreProtocolError
	if errors.As(err, &protoErr) {
		http.Error(w, "internal rate limit error", http.StatusInternalServerError)
		return
	}
	http.Error(w, "rate limit store unavailable", http.StatusInternalServerError)
}
