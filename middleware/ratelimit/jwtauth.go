package ratelimit

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"accessrl/middleware/ratelimit/domain"
	"accessrl/middleware/ratelimit/infra"
)

// WithJWTPrincipal is an optional convenience middleware: it reads a
// Bearer token from the Authorization header and, if it parses and
// validates against keyFunc, attaches the resulting domain.Principal
// to the request context so "user"/"sub"/"claim:<type>" key resolvers
// and the authenticated-limit cascade can see it. A missing or invalid
// token is not an error here — it leaves the request anonymous, same
// as having no auth middleware mounted at all (spec §1: auth is out of
// scope; this module only consumes what's already in context).
func WithJWTPrincipal(keyFunc jwt.Keyfunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := infra.ParseJWTPrincipal(token, keyFunc)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := domain.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
