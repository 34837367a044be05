package infra

import (
	"time"

	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"accessrl/middleware/ratelimit/domain"
)

// ZapLogger adapts a *zap.Logger onto domain.Logger, so domain and
// application stay logging-library-agnostic.
type ZapLogger struct {
	log *zap.Logger
}

// NewZapLogger wraps log. A nil log falls back to zap.NewNop().
func NewZapLogger(log *zap.Logger) *ZapLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapLogger{log: log}
}

func (l *ZapLogger) Warn(msg string, fields ...domain.Field) {
	l.log.Warn(msg, toZapFields(fields)...)
}

func (l *ZapLogger) Error(msg string, fields ...domain.Field) {
	l.log.Error(msg, toZapFields(fields)...)
}

func toZapFields(fields []domain.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

// ThrottledZapLogger wraps a ZapLogger with golang.org/x/time/rate's
// Sometimes helper so a noisy source (e.g. a policy that's
// persistently misconfigured) can't flood the log sink. This is
// strictly a log-volume control, never a rate-limit decision input
// (spec Non-goals: x/time/rate is not the decision engine here).
type ThrottledZapLogger struct {
	log       *ZapLogger
	sometimes *rate.Sometimes
}

// NewThrottledZapLogger logs at most once per interval across every
// Warn and Error call on the returned logger, which share a single
// *rate.Sometimes; calls inside the interval are dropped.
func NewThrottledZapLogger(log *zap.Logger, interval time.Duration) *ThrottledZapLogger {
	return &ThrottledZapLogger{
		log:       NewZapLogger(log),
		sometimes: &rate.Sometimes{Interval: interval},
	}
}

func (l *ThrottledZapLogger) Warn(msg string, fields ...domain.Field) {
	l.sometimes.Do(func() { l.log.Warn(msg, fields...) })
}

func (l *ThrottledZapLogger) Error(msg string, fields ...domain.Field) {
	l.sometimes.Do(func() { l.log.Error(msg, fields...) })
}
