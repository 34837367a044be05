package domain

import "context"

// Principal is the authenticated identity a request carries, if any. It
// is populated by whatever auth middleware runs upstream of this
// module (out of scope per spec §1) and attached to the request
// context under principalCtxKey.
type Principal interface {
	IsAuthenticated() bool
	// Claim returns the value of the named claim type (e.g. "sub",
	// "nameid") and whether it was present.
	Claim(claimType string) (string, bool)
}

type principalCtxKey struct{}

// ContextWithPrincipal attaches a Principal to ctx for downstream key
// resolvers and the Decision Driver's authenticated-limit check to
// read back via PrincipalFromContext.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext retrieves the Principal attached by
// ContextWithPrincipal. ok is false when no principal was attached,
// which is treated identically to an anonymous request.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}
