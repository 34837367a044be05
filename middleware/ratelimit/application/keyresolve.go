package application

import (
	"context"
	"fmt"
	"net"
	"strings"

	"accessrl/middleware/ratelimit/domain"
)

// ClaimNameIdentifier is the claim type the "user"/"user-id" resolver
// reads. It mirrors the .NET ClaimTypes.NameIdentifier convention the
// spec borrows its vocabulary from; any upstream auth middleware that
// populates a domain.Principal should use this key for the caller's
// durable identity claim. infra's JWT-backed Principal also accepts
// "uid" as an alias when "nameid" itself is absent.
const ClaimNameIdentifier = "nameid"

// ClaimSubject is the claim type the "sub" resolver reads.
const ClaimSubject = "sub"

// ResolverIP is the built-in spec name injected as the default
// resolver when a policy declares none.
const ResolverIP = "ip"

func ipResolver(_ context.Context, view domain.RequestView) (string, bool) {
	if ip, ok := firstForwardedIP(view.Header("X-Forwarded-For")); ok {
		return ip, true
	}
	if ip, ok := firstForwardedIP(view.Header("X-Real-IP")); ok {
		return ip, true
	}
	if host, ok := splitHostPort(view.RemoteAddr()); ok && host != "" {
		return host, true
	}
	if addr := strings.TrimSpace(view.RemoteAddr()); addr != "" {
		return addr, true
	}
	return "", false
}

// firstForwardedIP returns the first parseable address in a
// comma-separated header value, after trimming, stripping IPv6
// brackets, and stripping a trailing ":port" only when exactly one
// colon is present alongside a dot (so bare IPv6 addresses, which
// contain many colons, are left alone).
func firstForwardedIP(header string) (string, bool) {
	for _, part := range strings.Split(header, ",") {
		candidate := strings.TrimSpace(part)
		if candidate == "" {
			continue
		}
		candidate = strings.TrimPrefix(candidate, "[")
		if idx := strings.Index(candidate, "]"); idx >= 0 {
			candidate = candidate[:idx]
		}
		if strings.Count(candidate, ":") == 1 && strings.Contains(candidate, ".") {
			candidate = candidate[:strings.IndexByte(candidate, ':')]
		}
		if net.ParseIP(candidate) != nil {
			return candidate, true
		}
	}
	return "", false
}

func splitHostPort(addr string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", false
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, true
	}
	return host, true
}

func principalClaimResolver(claimType string) domain.KeyResolver {
	return func(_ context.Context, view domain.RequestView) (string, bool) {
		principal, ok := view.Principal()
		if !ok || principal == nil {
			return "", false
		}
		v, ok := principal.Claim(claimType)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}
}

func headerResolver(name string) domain.KeyResolver {
	return func(_ context.Context, view domain.RequestView) (string, bool) {
		v := strings.TrimSpace(view.Header(name))
		if v == "" {
			return "", false
		}
		return v, true
	}
}

// CompositeResolver invokes every resolver in order, collects every
// non-empty result (in order), and joins them with "|". It is not a
// fallback chain: every non-empty component contributes to the key.
func CompositeResolver(resolvers ...domain.KeyResolver) domain.KeyResolver {
	return func(ctx context.Context, view domain.RequestView) (string, bool) {
		parts := make([]string, 0, len(resolvers))
		for _, r := range resolvers {
			if v, ok := r(ctx, view); ok && v != "" {
				parts = append(parts, v)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, "|"), true
	}
}

// KeyResolverFactory compiles string resolver specs into
// domain.KeyResolver values. Parsing happens once per spec list, during
// policy normalization; it is never re-parsed per request (spec §9).
type KeyResolverFactory struct {
	builtins map[string]domain.KeyResolver
}

// DefaultKeyResolverFactory seeds a factory with the fixed-name
// built-in resolvers (ip, user, user-id, sub, api-key, client-id). The
// claim:<type> and header:<name> forms are not registered names; Compile
// parses them from the spec string.
func DefaultKeyResolverFactory() *KeyResolverFactory {
	f := &KeyResolverFactory{builtins: make(map[string]domain.KeyResolver)}
	f.Register(ResolverIP, ipResolver)
	f.Register("user", principalClaimResolver(ClaimNameIdentifier))
	f.Register("user-id", principalClaimResolver(ClaimNameIdentifier))
	f.Register("sub", principalClaimResolver(ClaimSubject))
	f.Register("api-key", headerResolver("X-Api-Key"))
	f.Register("client-id", headerResolver("X-Client-Id"))
	return f
}

// Register adds or replaces a named resolver. It lets operators extend
// the closed set of built-ins with application-specific resolvers
// before compiling policies, without forking this package.
func (f *KeyResolverFactory) Register(spec string, resolver domain.KeyResolver) {
	f.builtins[strings.ToLower(spec)] = resolver
}

// Compile turns an ordered list of resolver specs into a single
// resolver: one spec compiles to itself, more than one compiles to a
// CompositeResolver. An unknown spec is a fatal configuration error
// naming the spec (spec §4.B).
func (f *KeyResolverFactory) Compile(specs []string) (domain.KeyResolver, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no key resolver specs given")
	}

	resolved := make([]domain.KeyResolver, 0, len(specs))
	for _, spec := range specs {
		r, err := f.compileOne(spec)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, r)
	}

	if len(resolved) == 1 {
		return resolved[0], nil
	}
	return CompositeResolver(resolved...), nil
}

func (f *KeyResolverFactory) compileOne(spec string) (domain.KeyResolver, error) {
	trimmed := strings.TrimSpace(spec)
	lower := strings.ToLower(trimmed)

	if r, ok := f.builtins[lower]; ok {
		return r, nil
	}
	if strings.HasPrefix(lower, "claim:") {
		claimType := trimmed[len("claim:"):]
		if claimType == "" {
			return nil, fmt.Errorf("unknown key resolver spec %q: claim type is empty", spec)
		}
		return principalClaimResolver(claimType), nil
	}
	if strings.HasPrefix(lower, "header:") {
		headerName := trimmed[len("header:"):]
		if headerName == "" {
			return nil, fmt.Errorf("unknown key resolver spec %q: header name is empty", spec)
		}
		return headerResolver(headerName), nil
	}
	return nil, fmt.Errorf("unknown key resolver spec %q", spec)
}

// ResolveWithFallback implements the fail-soft chain at decision time
// (spec §4.B): if primary returns no identity, fallback is tried
// exactly once before giving up.
func ResolveWithFallback(ctx context.Context, view domain.RequestView, primary, fallback domain.KeyResolver) (string, bool) {
	if primary != nil {
		if v, ok := primary(ctx, view); ok && v != "" {
			return v, true
		}
	}
	if fallback != nil {
		if v, ok := fallback(ctx, view); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
