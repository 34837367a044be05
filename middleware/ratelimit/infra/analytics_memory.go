package infra

import (
	"context"
	"sync"

	"accessrl/middleware/ratelimit/domain"
)

// Counters tallies decisions by outcome.
type Counters struct {
	Allowed int64
	Limited int64
	Blocked int64
}

// MemoryAnalyticsSink is an in-process domain.AnalyticsSink. It never
// expires entries and is meant for tests and local development, not
// production (spec's supplemental analytics concern, not the
// spec-mandated MetricsSink).
type MemoryAnalyticsSink struct {
	mu      sync.Mutex
	total   Counters
	byPolicy map[string]Counters
	byKey    map[string]Counters

	trackKeys bool
}

type MemoryAnalyticsOption func(*MemoryAnalyticsSink)

// WithTrackKeys enables per-keyHash breakdowns. Off by default: a
// hash is still a (bounded-cardinality, but unbounded-count) per-caller
// dimension best left opt-in.
func WithTrackKeys(track bool) MemoryAnalyticsOption {
	return func(s *MemoryAnalyticsSink) { s.trackKeys = track }
}

func NewMemoryAnalyticsSink(opts ...MemoryAnalyticsOption) *MemoryAnalyticsSink {
	s := &MemoryAnalyticsSink{
		byPolicy: make(map[string]Counters),
		byKey:    make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryAnalyticsSink) Record(_ context.Context, ev domain.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bump(&s.total, ev)

	c := s.byPolicy[ev.Policy]
	bump(&c, ev)
	s.byPolicy[ev.Policy] = c

	if s.trackKeys {
		k := s.byKey[ev.KeyHash]
		bump(&k, ev)
		s.byKey[ev.KeyHash] = k
	}
	return nil
}

func bump(c *Counters, ev domain.AnalyticsEvent) {
	switch {
	case ev.Blocked:
		c.Blocked++
	case ev.Allowed:
		c.Allowed++
	default:
		c.Limited++
	}
}

func (s *MemoryAnalyticsSink) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryAnalyticsSink) ByPolicy() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byPolicy))
	for k, v := range s.byPolicy {
		out[k] = v
	}
	return out
}

func (s *MemoryAnalyticsSink) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}

var _ domain.AnalyticsSink = (*MemoryAnalyticsSink)(nil)
