package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"accessrl/middleware/ratelimit/domain"
)

// PrometheusMetrics is a domain.MetricsSink backed by
// github.com/prometheus/client_golang. Every decision increments a
// single counter vector labeled by policy, scope and outcome, and sets
// the remaining-token gauge for its policy/scope pair so an operator
// can watch headroom drain toward a limit before it's hit. Every
// Store.Evaluate round trip observes storeCall, a histogram labeled
// only by policy, so an operator can watch Redis latency separately
// from the allow/deny mix.
type PrometheusMetrics struct {
	decisions *prometheus.CounterVec
	remaining *prometheus.GaugeVec
	storeCall *prometheus.HistogramVec
}

// NewPrometheusMetrics registers its collectors against reg. Passing
// nil registers against prometheus.DefaultRegisterer, the registry
// promhttp.Handler serves.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accessrl",
				Name:      "decisions_total",
				Help:      "Total rate-limit decisions by policy, scope and outcome.",
			},
			[]string{"policy", "scope", "outcome"},
		),
		remaining: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "accessrl",
				Name:      "remaining_tokens",
				Help:      "Remaining tokens observed on the most recent decision for a policy/scope pair.",
			},
			[]string{"policy", "scope"},
		),
		storeCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "accessrl",
				Name:      "store_call_seconds",
				Help:      "Duration of a single Store.Evaluate round trip, by policy.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"policy"},
		),
	}
}

func (m *PrometheusMetrics) OnAllowed(d domain.Decision) {
	m.decisions.WithLabelValues(d.PolicyName, d.Scope, "allowed").Inc()
	m.remaining.WithLabelValues(d.PolicyName, d.Scope).Set(float64(d.Remaining))
}

func (m *PrometheusMetrics) OnLimited(d domain.Decision) {
	m.decisions.WithLabelValues(d.PolicyName, d.Scope, "limited").Inc()
	m.remaining.WithLabelValues(d.PolicyName, d.Scope).Set(float64(d.Remaining))
}

func (m *PrometheusMetrics) OnBlocked(d domain.Decision) {
	m.decisions.WithLabelValues(d.PolicyName, d.Scope, "blocked").Inc()
	m.remaining.WithLabelValues(d.PolicyName, d.Scope).Set(float64(d.Remaining))
}

func (m *PrometheusMetrics) ObserveStoreCall(policy string, d time.Duration) {
	m.storeCall.WithLabelValues(policy).Observe(d.Seconds())
}

var _ domain.MetricsSink = (*PrometheusMetrics)(nil)
