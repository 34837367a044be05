package domain

import "context"

// EndpointMetadata is the rate-limit-relevant metadata a route can
// attach to a request. Multiple entries may be pushed along the
// middleware chain (e.g. a group-level policy plus a route-level scope
// override); the Decision Driver walks them in order and the last
// non-zero value of each field wins (spec §4.C step 1).
type EndpointMetadata struct {
	PolicyName string
	Scope      string
	Cost       int64
	// RoutePattern and DisplayName feed the scope-resolution fallback
	// chain (spec §4.C step 4) when neither metadata.scope nor
	// policy.SharedBucket is set.
	RoutePattern string
	DisplayName  string
}

type endpointMetaCtxKey struct{}

// ContextWithEndpointMetadata appends m to the metadata chain already
// present in ctx, preserving registration order.
func ContextWithEndpointMetadata(ctx context.Context, m EndpointMetadata) context.Context {
	existing, _ := ctx.Value(endpointMetaCtxKey{}).([]EndpointMetadata)
	next := make([]EndpointMetadata, len(existing)+1)
	copy(next, existing)
	next[len(existing)] = m
	return context.WithValue(ctx, endpointMetaCtxKey{}, next)
}

// EndpointMetadataFromContext returns the metadata chain attached to
// ctx, oldest first.
func EndpointMetadataFromContext(ctx context.Context) []EndpointMetadata {
	v, _ := ctx.Value(endpointMetaCtxKey{}).([]EndpointMetadata)
	return v
}

// ResolveEndpointMetadata folds a metadata chain into a single value
// using "last non-zero field wins."
func ResolveEndpointMetadata(chain []EndpointMetadata) EndpointMetadata {
	var out EndpointMetadata
	for _, m := range chain {
		if m.PolicyName != "" {
			out.PolicyName = m.PolicyName
		}
		if m.Scope != "" {
			out.Scope = m.Scope
		}
		if m.Cost > 0 {
			out.Cost = m.Cost
		}
		if m.RoutePattern != "" {
			out.RoutePattern = m.RoutePattern
		}
		if m.DisplayName != "" {
			out.DisplayName = m.DisplayName
		}
	}
	return out
}
