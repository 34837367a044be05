package domain

import (
	"context"
	"time"
)

// AnalyticsEvent is a denormalized view of a Decision, suitable for
// cheap historical aggregation (allowed/denied counts by policy,
// scope, and caller). It is deliberately a separate concern from
// MetricsSink: MetricsSink is the spec-mandated per-decision hook used
// for live metrics emission; AnalyticsSink is a supplemental,
// best-effort persistence path an operator can enable for after-the-
// fact review of penalty escalation and quota pressure.
type AnalyticsEvent struct {
	Policy  string
	Scope   string
	KeyHash string

	Allowed    bool
	Blocked    bool
	Violations int64

	At time.Time
}

// AnalyticsSink persists AnalyticsEvents. Implementations must treat
// their own failures as best-effort: a broken analytics sink must
// never fail or slow down the request it is describing.
//
// Mind cardinality: storing per-key series unconditionally can make a
// high-cardinality caller population explode the number of keys in a
// store like Redis; implementations should make per-key tracking
// optional.
type AnalyticsSink interface {
	Record(ctx context.Context, ev AnalyticsEvent) error
}
