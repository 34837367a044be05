package domain

import (
	"fmt"
	"strings"
	"time"
)

// Key is the resolved caller identity string, before fingerprinting.
type Key string

// PenaltyConfig describes the escalating-block behavior applied after
// repeated denials within ViolationWindow.
type PenaltyConfig struct {
	Enabled bool
	// ViolationWindow is the sliding window during which denials
	// accumulate against the same (policy, scope, keyHash) triple.
	ViolationWindow time.Duration
	// Durations holds P[1..n], the block duration selected by the k-th
	// violation within ViolationWindow (1-indexed, saturating at P[n]).
	Durations []time.Duration
}

// CostFunc computes a dynamic per-request cost. It receives the same
// RequestView the key resolvers see.
type CostFunc func(RequestView) int64

// ExemptFunc reports whether a request should bypass limiting entirely.
type ExemptFunc func(RequestView) bool

// Policy is a named rate-limiting rule set. Policies are immutable once
// published by the Policy Provider; reconfiguration replaces the whole
// snapshot atomically, never a single Policy in place.
type Policy struct {
	Name string

	Limit  int64
	Window time.Duration
	Cost   int64

	// LimitPerSecond/Minute/Hour are per-period convenience inputs.
	// Normalization (PolicyProvider.normalize) materializes whichever
	// one is set into Limit+Window before ValidateInvariants runs, so
	// by the time a Policy is looked up via a published snapshot only
	// Limit/Window matter. At most one should be set; if more than one
	// is, LimitPerSecond wins, then LimitPerMinute, then LimitPerHour.
	LimitPerSecond int64
	LimitPerMinute int64
	LimitPerHour   int64

	AuthenticatedLimit int64 // 0 means unset
	AnonymousLimit     int64 // 0 means unset

	// AuthenticatedWhen overrides the default authenticated-predicate
	// chain described in spec §4.C step 6. Nil means "use the default
	// chain" (the Driver's GlobalAuthenticatedWhen, then
	// RequestView.Principal(), then AuthenticatedHeaders).
	AuthenticatedWhen  func(RequestView) bool
	AuthenticatedHeaders []string

	SharedBucket string

	// Resolver is either supplied directly by the caller (ResolverSpecs
	// is then ignored) or compiled once during normalization from
	// ResolverSpecs, which default to ["ip"] when empty. Resolver is
	// always non-nil once normalization completes.
	Resolver      KeyResolver
	ResolverSpecs []string

	Penalty PenaltyConfig

	Enabled bool

	// FailClosed inverts the default fail-open behavior on a store
	// transport failure. Zero value (false) is fail-open: the request
	// is let through and the error is logged. true surfaces the
	// failure as an infrastructure error for the caller to turn into a
	// 5xx (spec §7: "Policy FailOpen = true (default)"). The field is
	// named for the non-default case so its Go zero value matches the
	// spec's default without a separate "was this set" flag.
	FailClosed bool

	Exempt       ExemptFunc
	CostResolver CostFunc
}

// ConfigError reports an invariant violation discovered while
// normalizing a policy. It names the offending policy and field so a
// misconfiguration is diagnosable without a debugger.
type ConfigError struct {
	Policy string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("accessrl: policy %q: field %q: %s", e.Policy, e.Field, e.Reason)
}

// ValidateInvariants checks the §3 invariants against an already
// per-period-normalized policy (Limit/Window populated, Cost
// defaulted). It does not mutate p.
func (p *Policy) ValidateInvariants() error {
	name := p.Name
	if strings.TrimSpace(name) == "" {
		return &ConfigError{Policy: name, Field: "Name", Reason: "must not be empty"}
	}
	if p.Limit <= 0 {
		return &ConfigError{Policy: name, Field: "Limit", Reason: "must be a positive integer"}
	}
	if p.Window <= 0 {
		return &ConfigError{Policy: name, Field: "Window", Reason: "must be a positive duration"}
	}
	if p.Cost <= 0 {
		return &ConfigError{Policy: name, Field: "Cost", Reason: "must be a positive integer"}
	}
	if p.Cost > p.Limit {
		return &ConfigError{Policy: name, Field: "Cost", Reason: "must not exceed Limit"}
	}
	if p.Penalty.ViolationWindow < 0 {
		return &ConfigError{Policy: name, Field: "Penalty.ViolationWindow", Reason: "must be >= 0"}
	}
	for i, d := range p.Penalty.Durations {
		if d <= 0 {
			return &ConfigError{Policy: name, Field: fmt.Sprintf("Penalty.Durations[%d]", i), Reason: "must be a positive duration"}
		}
	}
	return nil
}
