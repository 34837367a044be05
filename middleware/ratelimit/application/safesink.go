package application

import (
	"time"

	"accessrl/middleware/ratelimit/domain"
)

// PanicHandler is invoked with whatever recover() produced when a
// wrapped MetricsSink method panics. The default, SafeSink's zero
// value, simply discards it; callers that want visibility can supply
// one that logs.
type PanicHandler func(method string, recovered any)

// SafeSink wraps a domain.MetricsSink so a panicking hook can never
// corrupt the decision path (spec §7: "Metrics hooks that throw must
// not corrupt the decision path; wrap them.").
type SafeSink struct {
	Sink    domain.MetricsSink
	OnPanic PanicHandler
}

func (s SafeSink) OnAllowed(d domain.Decision) { s.call("OnAllowed", func() { s.Sink.OnAllowed(d) }) }
func (s SafeSink) OnLimited(d domain.Decision) { s.call("OnLimited", func() { s.Sink.OnLimited(d) }) }
func (s SafeSink) OnBlocked(d domain.Decision) { s.call("OnBlocked", func() { s.Sink.OnBlocked(d) }) }

func (s SafeSink) ObserveStoreCall(policy string, d time.Duration) {
	s.call("ObserveStoreCall", func() { s.Sink.ObserveStoreCall(policy, d) })
}

func (s SafeSink) call(method string, fn func()) {
	if s.Sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && s.OnPanic != nil {
			s.OnPanic(method, r)
		}
	}()
	fn()
}
