package application

import (
	"strings"
	"sync/atomic"
	"time"

	"accessrl/middleware/ratelimit/domain"
)

// PolicyProvider maintains an immutable snapshot of every known policy
// and publishes replacements atomically. Lookups are lock-free reads of
// the current snapshot pointer: readers see either the old snapshot or
// the new one in full, never a torn mix (spec §5).
type PolicyProvider struct {
	current atomic.Pointer[domain.PolicySnapshot]
	version atomic.Uint64
	keys    *KeyResolverFactory
}

// NewPolicyProvider constructs a provider with no published snapshot
// yet. GetPolicy/GetDefault return nil until Publish succeeds at least
// once. factory resolves KeyResolvers specs during normalization; a nil
// factory uses DefaultKeyResolverFactory().
func NewPolicyProvider(factory *KeyResolverFactory) *PolicyProvider {
	if factory == nil {
		factory = DefaultKeyResolverFactory()
	}
	return &PolicyProvider{keys: factory}
}

// Publish normalizes every policy in raw and, if every one validates,
// atomically swaps in a brand-new snapshot. raw is not mutated; the
// provider stores a copy of each Policy struct, so the caller is free
// to reuse the map. The copies are shallow: slice fields share their
// backing arrays with the caller's policies.
// On any invariant violation, the previous snapshot remains in effect
// and the *domain.ConfigError naming the offending policy/field is
// returned (spec §4.A: "failing fast with a descriptive error naming
// the offending policy").
func (p *PolicyProvider) Publish(raw map[string]*domain.Policy, defaultName string) error {
	normalized := make(map[string]*domain.Policy, len(raw))
	for name, policy := range raw {
		cp := *policy
		cp.Name = name
		if err := p.normalize(&cp); err != nil {
			return err
		}
		normalized[strings.ToLower(name)] = &cp
	}

	snap := &domain.PolicySnapshot{
		Policies:    normalized,
		DefaultName: strings.ToLower(defaultName),
		Version:     p.version.Add(1),
		LoadedAt:    time.Now().UTC(),
	}
	p.current.Store(snap)
	return nil
}

// normalize applies spec §4.A's per-policy normalization: materialize
// any per-period convenience field into Limit+Window, default Cost,
// ensure a resolver, then validate invariants.
func (p *PolicyProvider) normalize(policy *domain.Policy) error {
	if policy.Limit == 0 {
		switch {
		case policy.LimitPerSecond > 0:
			policy.Limit = policy.LimitPerSecond
			policy.Window = time.Second
		case policy.LimitPerMinute > 0:
			policy.Limit = policy.LimitPerMinute
			policy.Window = time.Minute
		case policy.LimitPerHour > 0:
			policy.Limit = policy.LimitPerHour
			policy.Window = time.Hour
		}
	}

	if policy.Cost == 0 {
		policy.Cost = 1
	}

	if policy.Resolver == nil {
		specs := policy.ResolverSpecs
		if len(specs) == 0 {
			specs = []string{"ip"}
		}
		resolver, err := p.keys.Compile(specs)
		if err != nil {
			return &domain.ConfigError{Policy: policy.Name, Field: "KeyResolvers", Reason: err.Error()}
		}
		policy.Resolver = resolver
	}

	return policy.ValidateInvariants()
}

// GetPolicy looks up a policy by name, case-insensitively. Returning
// nil is not an error; it means "no limiting applies."
func (p *PolicyProvider) GetPolicy(name string) *domain.Policy {
	return p.Snapshot().Get(name)
}

// GetDefault returns the provider's default policy, or nil.
func (p *PolicyProvider) GetDefault() *domain.Policy {
	return p.Snapshot().Default()
}

// Snapshot returns the currently published snapshot (possibly nil if
// Publish was never called). Exposed for diagnostics endpoints; it
// contains no secrets, only normalized policy shapes.
func (p *PolicyProvider) Snapshot() *domain.PolicySnapshot {
	return p.current.Load()
}
