package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"accessrl/middleware/ratelimit/domain"
)

// Driver is the Decision Driver: it turns an inbound request plus its
// endpoint metadata chain into a single domain.Decision, orchestrating
// policy lookup, key/scope resolution, effective limit/cost computation
// and the one atomic call into the Store Core (spec §4.C).
type Driver struct {
	Provider *PolicyProvider
	Store    domain.Store
	Metrics  domain.MetricsSink
	Logger   domain.Logger

	// FallbackResolver is tried once when a policy's own resolver
	// returns no identity (spec §4.B). Defaults to the built-in ip
	// resolver when nil.
	FallbackResolver domain.KeyResolver

	// GlobalExempt runs in addition to a policy's own Exempt predicate;
	// either one matching bypasses limiting.
	GlobalExempt domain.ExemptFunc

	// GlobalAuthenticatedWhen is consulted in the authenticated-
	// predicate cascade when a policy doesn't override it (spec §4.C
	// step 6, priority 2).
	GlobalAuthenticatedWhen func(domain.RequestView) bool

	// KeyPrefix namespaces every store key this driver builds. Defaults
	// to "elf:accessrl" (spec §6) when empty.
	KeyPrefix string
}

// Result is what Decide returns: either a fully-formed Decision, or a
// bypass with no decision at all (no store write occurred, so there is
// nothing to report remaining/limit/reset for).
type Result struct {
	Decision domain.Decision
	Bypassed bool
}

func (d *Driver) logger() domain.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return domain.NoOpLogger{}
}

func (d *Driver) metrics() domain.MetricsSink {
	if d.Metrics != nil {
		return SafeSink{Sink: d.Metrics}
	}
	return domain.NoOpMetricsSink{}
}

func (d *Driver) fallback() domain.KeyResolver {
	if d.FallbackResolver != nil {
		return d.FallbackResolver
	}
	return ipResolver
}

func (d *Driver) keyPrefix() string {
	if d.KeyPrefix != "" {
		return d.KeyPrefix
	}
	return "elf:accessrl"
}

// Decide implements spec §4.C steps 1-12. ctx carries whatever endpoint
// metadata was pushed by the routing layer via
// domain.ContextWithEndpointMetadata.
func (d *Driver) Decide(ctx context.Context, view domain.RequestView) (Result, error) {
	meta := domain.ResolveEndpointMetadata(domain.EndpointMetadataFromContext(ctx))
	snapshot := d.Provider.Snapshot()
	if snapshot == nil {
		// Nothing has been published yet; there is no policy to apply.
		return Result{Bypassed: true}, nil
	}

	// Step 1-2: resolve policy name, falling back to the snapshot
	// default, then look it up. No name at all, or a name that isn't
	// in the snapshot, bypasses limiting rather than failing the
	// request (spec §7: unknown policy is a warning, not an error).
	policyName := meta.PolicyName
	if policyName == "" {
		policyName = snapshot.DefaultName
	}
	if policyName == "" {
		return Result{Bypassed: true}, nil
	}

	policy := snapshot.Get(policyName)
	if policy == nil {
		d.logger().Warn("rate limit policy not found, bypassing", domain.F("policy", policyName))
		return Result{Bypassed: true}, nil
	}

	// Step 3: enablement gates.
	if !policy.Enabled {
		return Result{Bypassed: true}, nil
	}
	if d.GlobalExempt != nil && d.GlobalExempt(view) {
		return Result{Bypassed: true}, nil
	}
	if policy.Exempt != nil && policy.Exempt(view) {
		return Result{Bypassed: true}, nil
	}

	// Step 4: scope resolution priority chain.
	scope := FirstNonEmpty(meta.Scope, policy.SharedBucket, meta.RoutePattern, meta.DisplayName, "unknown")

	// Step 5: key resolution, fail-soft fallback tried once.
	key, ok := ResolveWithFallback(ctx, view, policy.Resolver, d.fallback())
	if !ok {
		return Result{Bypassed: true}, nil
	}

	// Step 6: authenticated-predicate cascade.
	authenticated := d.isAuthenticated(view, policy)

	// Step 7: effective limit.
	effectiveLimit := policy.Limit
	switch {
	case authenticated && policy.AuthenticatedLimit > 0:
		effectiveLimit = policy.AuthenticatedLimit
	case !authenticated && policy.AnonymousLimit > 0:
		effectiveLimit = policy.AnonymousLimit
	}

	// Step 8: effective cost, clamped to [1, effectiveLimit].
	cost := meta.Cost
	if cost <= 0 && policy.CostResolver != nil {
		cost = policy.CostResolver(view)
	}
	if cost <= 0 {
		cost = policy.Cost
	}
	if cost < 1 {
		cost = 1
	}
	if cost > effectiveLimit {
		cost = effectiveLimit
	}

	// Step 9: key fingerprinting, scope sanitization, store key
	// construction.
	keyHash := FingerprintKey(key)
	scopeKey := SanitizeScope(scope)
	prefix := d.keyPrefix()
	bucketKey := fmt.Sprintf("%s:bucket:%s:%s:%s", prefix, policy.Name, scopeKey, keyHash)
	blockKey := fmt.Sprintf("%s:block:%s:%s:%s", prefix, policy.Name, scopeKey, keyHash)
	violationKey := fmt.Sprintf("%s:viol:%s:%s:%s", prefix, policy.Name, scopeKey, keyHash)

	req := domain.StoreRequest{
		BucketKey:    bucketKey,
		BlockKey:     blockKey,
		ViolationKey: violationKey,
		Capacity:     effectiveLimit,
		Window:       policy.Window,
		Cost:         cost,
		Penalty:      policy.Penalty,
	}

	// Step 10: the single atomic store call.
	callStart := time.Now()
	result, err := d.Store.Evaluate(ctx, req)
	d.metrics().ObserveStoreCall(policy.Name, time.Since(callStart))
	if err != nil {
		var protoErr *domain.StoreProtocolError
		if errors.As(err, &protoErr) {
			// A protocol violation is a bug signal, never a load
			// signal: it always propagates, FailClosed or not.
			return Result{}, err
		}
		if !policy.FailClosed {
			d.logger().Error("store transport failure, failing open",
				domain.F("policy", policy.Name), domain.F("error", err.Error()))
			return Result{Bypassed: true}, nil
		}
		return Result{}, &domain.StoreTransportError{Err: err}
	}

	// Step 11-12: decision construction.
	remaining := result.RemainingTokens
	if remaining < 0 {
		remaining = 0
	}
	resetAfterSeconds := result.ResetAfterSeconds
	if resetAfterSeconds <= 0 {
		resetAfterSeconds = result.RetryAfterSeconds
	}

	decision := domain.Decision{
		PolicyName:     policy.Name,
		Scope:          scope,
		KeyHash:        keyHash,
		EffectiveLimit: effectiveLimit,
		Remaining:      int64(remaining),
		Cost:           cost,
		RetryAfter:     time.Duration(result.RetryAfterSeconds) * time.Second,
		Reset:          time.Now().UTC().Add(time.Duration(resetAfterSeconds) * time.Second),
		Allowed:        result.Allowed,
		Blocked:        result.Blocked,
		Violations:     result.Violations,
	}

	d.dispatchMetrics(decision)
	return Result{Decision: decision}, nil
}

func (d *Driver) dispatchMetrics(decision domain.Decision) {
	sink := d.metrics()
	switch {
	case decision.Blocked:
		sink.OnBlocked(decision)
	case !decision.Allowed:
		sink.OnLimited(decision)
	default:
		sink.OnAllowed(decision)
	}
}

// isAuthenticated implements the spec §4.C step 6 cascade: a policy's
// own predicate wins over the driver's global one, which wins over
// reading RequestView.Principal(), which wins over checking whether any
// AuthenticatedHeaders carry a non-empty value.
func (d *Driver) isAuthenticated(view domain.RequestView, policy *domain.Policy) bool {
	if policy.AuthenticatedWhen != nil {
		return policy.AuthenticatedWhen(view)
	}
	if d.GlobalAuthenticatedWhen != nil {
		return d.GlobalAuthenticatedWhen(view)
	}
	if principal, ok := view.Principal(); ok && principal != nil {
		return principal.IsAuthenticated()
	}
	for _, header := range policy.AuthenticatedHeaders {
		if strings.TrimSpace(view.Header(header)) != "" {
			return true
		}
	}
	return false
}
