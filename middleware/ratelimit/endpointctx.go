package ratelimit

import (
	"net/http"

	"accessrl/middleware/ratelimit/domain"
)

// Annotate pushes m onto the request's endpoint metadata chain before
// calling next, so a route group and an individual route can each
// contribute metadata and have the Decision Driver fold them with
// "last non-zero field wins" (spec §4.C step 1). Mount it as close to
// the route as the router allows; group-level annotations should run
// before route-level ones so the route's values win.
func Annotate(m domain.EndpointMetadata) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := domain.ContextWithEndpointMetadata(r.Context(), m)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithPolicy is shorthand for Annotate(domain.EndpointMetadata{PolicyName: name}).
func WithPolicy(name string) func(http.Handler) http.Handler {
	return Annotate(domain.EndpointMetadata{PolicyName: name})
}

// WithScope is shorthand for Annotate(domain.EndpointMetadata{Scope: scope}).
func WithScope(scope string) func(http.Handler) http.Handler {
	return Annotate(domain.EndpointMetadata{Scope: scope})
}

// WithCost is shorthand for Annotate(domain.EndpointMetadata{Cost: cost}).
func WithCost(cost int64) func(http.Handler) http.Handler {
	return Annotate(domain.EndpointMetadata{Cost: cost})
}
