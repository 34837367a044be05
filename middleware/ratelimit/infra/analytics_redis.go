package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"accessrl/middleware/ratelimit/domain"
)

// RedisAnalyticsSink is a best-effort domain.AnalyticsSink writing
// rolling per-minute and cumulative counters to Redis. It shares the
// same client as the Store Core but writes to a disjoint key prefix,
// and every write is a pipeline so a slow analytics write never holds
// up more than one round trip.
type RedisAnalyticsSink struct {
	rdb *redis.Client

	prefix    string
	ttl       time.Duration
	bucket    string // "minute" or "none"
	trackKeys bool
}

type RedisAnalyticsOption func(*RedisAnalyticsSink)

func WithAnalyticsPrefix(prefix string) RedisAnalyticsOption {
	return func(s *RedisAnalyticsSink) { s.prefix = strings.Trim(prefix, ":") }
}

func WithAnalyticsTTL(d time.Duration) RedisAnalyticsOption {
	return func(s *RedisAnalyticsSink) { s.ttl = d }
}

func WithAnalyticsBucket(bucket string) RedisAnalyticsOption {
	return func(s *RedisAnalyticsSink) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithAnalyticsTrackKeys(track bool) RedisAnalyticsOption {
	return func(s *RedisAnalyticsSink) { s.trackKeys = track }
}

func NewRedisAnalyticsSink(rdb *redis.Client, opts ...RedisAnalyticsOption) *RedisAnalyticsSink {
	s := &RedisAnalyticsSink{
		rdb:    rdb,
		prefix: "accessrl:analytics",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisAnalyticsSink) Record(ctx context.Context, ev domain.AnalyticsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := outcomeField(ev)
	totalKey := s.prefix + ":total"

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ev.Policy != "" {
		policyKey := s.prefix + ":policy:" + ev.Policy
		pipe.HIncrBy(ctx, policyKey, field, 1)
	}

	if s.trackKeys && ev.KeyHash != "" {
		keyKey := s.prefix + ":key:" + ev.KeyHash
		pipe.HIncrBy(ctx, keyKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, keyKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

func outcomeField(ev domain.AnalyticsEvent) string {
	switch {
	case ev.Blocked:
		return "blocked"
	case ev.Allowed:
		return "allowed"
	default:
		return "limited"
	}
}

var _ domain.AnalyticsSink = (*RedisAnalyticsSink)(nil)
