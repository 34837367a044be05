package infra

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"accessrl/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketScript string

// RedisStore is the Store Core: a single Redis client plus the
// token-bucket Lua script, loaded once and invoked by SHA on every
// evaluation (spec §4.D, §5 "scripts are cached by hash after first
// load").
type RedisStore struct {
	rdb       *redis.Client
	scriptSHA string
}

// NewRedisStore pings rdb and loads the embedded script, failing fast
// if either doesn't succeed. The returned store's Close closes rdb.
func NewRedisStore(ctx context.Context, rdb *redis.Client) (*RedisStore, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("accessrl: redis ping: %w", err)
	}

	sha, err := rdb.ScriptLoad(ctx, tokenBucketScript).Result()
	if err != nil {
		return nil, fmt.Errorf("accessrl: redis script load: %w", err)
	}

	return &RedisStore{rdb: rdb, scriptSHA: sha}, nil
}

// Evaluate implements domain.Store. It formats every numeric argument
// with invariant (non-locale) formatting per spec §4.D, retries exactly
// once via EVAL on NOSCRIPT (the script cache can be flushed out from
// under a long-lived SHA by an operator running SCRIPT FLUSH), and
// treats any other shape mismatch as a domain.StoreProtocolError rather
// than silently returning a denial.
func (s *RedisStore) Evaluate(ctx context.Context, req domain.StoreRequest) (domain.StoreResult, error) {
	keys := []string{req.BucketKey, req.BlockKey, req.ViolationKey}
	args := buildArgs(req)

	raw, err := s.rdb.EvalSha(ctx, s.scriptSHA, keys, args...).Result()
	if err != nil && isNoScript(err) {
		raw, err = s.rdb.Eval(ctx, tokenBucketScript, keys, args...).Result()
	}
	if err != nil {
		return domain.StoreResult{}, err
	}

	return parseResult(raw)
}

func isNoScript(err error) bool {
	return strings.HasPrefix(err.Error(), "NOSCRIPT")
}

// buildArgs formats request fields the same way for EVALSHA and the
// EVAL fallback, in the order token_bucket.lua expects: capacity,
// window, cost, penalty enabled, violation window, duration count, then
// each duration.
func buildArgs(req domain.StoreRequest) []any {
	args := []any{
		formatFloat(float64(req.Capacity)),
		formatFloat(req.Window.Seconds()),
		formatFloat(float64(req.Cost)),
		boolArg(req.Penalty.Enabled),
		formatFloat(req.Penalty.ViolationWindow.Seconds()),
		strconv.Itoa(len(req.Penalty.Durations)),
	}
	for _, d := range req.Penalty.Durations {
		args = append(args, formatFloat(d.Seconds()))
	}
	return args
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// formatFloat uses strconv's shortest round-trippable, non-locale
// representation, per spec §4.D: "numeric args must cross the
// language/store boundary with invariant formatting."
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseResult validates the six-element shape token_bucket.lua always
// returns and converts it into a domain.StoreResult. Any deviation is
// a bug in the script or the client, not a rate-limit decision: it
// surfaces as *domain.StoreProtocolError.
func parseResult(raw any) (domain.StoreResult, error) {
	values, ok := raw.([]any)
	if !ok || len(values) != 6 {
		return domain.StoreResult{}, &domain.StoreProtocolError{
			Reason: fmt.Sprintf("expected a 6-element array, got %T", raw),
		}
	}

	allowed, err := asInt(values[0])
	if err != nil {
		return domain.StoreResult{}, &domain.StoreProtocolError{Reason: "allowed: " + err.Error()}
	}
	blocked, err := asInt(values[1])
	if err != nil {
		return domain.StoreResult{}, &domain.StoreProtocolError{Reason: "blocked: " + err.Error()}
	}
	remaining, err := asFloat(values[2])
	if err != nil {
		return domain.StoreResult{}, &domain.StoreProtocolError{Reason: "remainingTokens: " + err.Error()}
	}
	retryAfter, err := asInt(values[3])
	if err != nil {
		return domain.StoreResult{}, &domain.StoreProtocolError{Reason: "retryAfterSeconds: " + err.Error()}
	}
	resetAfter, err := asInt(values[4])
	if err != nil {
		return domain.StoreResult{}, &domain.StoreProtocolError{Reason: "resetAfterSeconds: " + err.Error()}
	}
	violations, err := asInt(values[5])
	if err != nil {
		return domain.StoreResult{}, &domain.StoreProtocolError{Reason: "violations: " + err.Error()}
	}

	return domain.StoreResult{
		Allowed:           allowed == 1,
		Blocked:           blocked == 1,
		RemainingTokens:   remaining,
		RetryAfterSeconds: retryAfter,
		ResetAfterSeconds: resetAfter,
		Violations:        violations,
	}, nil
}

func asInt(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		return n, nil
	default:
		return 0, errors.New("unexpected type")
	}
}

func asFloat(v any) (float64, error) {
	switch t := v.(type) {
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("not a float: %v", v)
		}
		return f, nil
	default:
		return 0, errors.New("unexpected type")
	}
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

var _ domain.Store = (*RedisStore)(nil)

// pingTimeout bounds NewRedisStoreWithTimeout's startup probe so a
// misconfigured address fails fast during boot rather than hanging the
// process.
const pingTimeout = 5 * time.Second

// NewRedisStoreWithTimeout is a convenience wrapper for callers that
// don't already carry a context during wiring.
func NewRedisStoreWithTimeout(rdb *redis.Client) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return NewRedisStore(ctx, rdb)
}
