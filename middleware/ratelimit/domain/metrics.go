package domain

import "time"

// MetricsSink receives one call per decision, plus one timing
// observation per Store.Evaluate round trip. Implementations must be
// non-blocking; the application layer wraps every sink so a panicking
// hook cannot corrupt the decision path (spec §7).
type MetricsSink interface {
	OnAllowed(Decision)
	OnLimited(Decision)
	OnBlocked(Decision)
	// ObserveStoreCall reports how long a single Store.Evaluate call
	// took for policy, regardless of its outcome or whether it
	// errored.
	ObserveStoreCall(policy string, d time.Duration)
}

// NoOpMetricsSink discards every call. It is the default sink so the
// hot path never has to nil-check before calling out.
type NoOpMetricsSink struct{}

func (NoOpMetricsSink) OnAllowed(Decision)                        {}
func (NoOpMetricsSink) OnLimited(Decision)                        {}
func (NoOpMetricsSink) OnBlocked(Decision)                        {}
func (NoOpMetricsSink) ObserveStoreCall(string, time.Duration) {}
