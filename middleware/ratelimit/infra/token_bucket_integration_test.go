package infra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"accessrl/middleware/ratelimit/domain"
)

// setupTestRedis mirrors the pack's own integration-test convention
// (Aidin1998-finalex/test/ratelimit_comprehensive_test.go): prefer an
// already-running local Redis, and only pay for a container when one
// isn't reachable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := rdb.Ping(ctx).Err(); err == nil {
		rdb.FlushDB(ctx)
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}
	_ = rdb.Close()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("no local redis and no docker available for testcontainers: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	rdb = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newTestStore(t *testing.T) (*RedisStore, string) {
	t.Helper()
	rdb := setupTestRedis(t)
	store, err := NewRedisStore(context.Background(), rdb)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, fmt.Sprintf("accessrl:test:%d", time.Now().UnixNano())
}

func storeReq(prefix string, capacity int64, window time.Duration, cost int64, penalty domain.PenaltyConfig) domain.StoreRequest {
	return domain.StoreRequest{
		BucketKey:    prefix + ":bucket",
		BlockKey:     prefix + ":block",
		ViolationKey: prefix + ":viol",
		Capacity:     capacity,
		Window:       window,
		Cost:         cost,
		Penalty:      penalty,
	}
}

// S1: Limit=3, Window=10s, Cost=1, no penalty durations (only a
// violation window, so denials are counted). 4 rapid calls: the
// first 3 allow with strictly decreasing remaining, the 4th denies
// with a positive retry-after and exactly one recorded violation.
func TestTokenBucketLua_S1_AllowsUpToCapacityThenDenies(t *testing.T) {
	store, prefix := newTestStore(t)
	req := storeReq(prefix, 3, 10*time.Second, 1, domain.PenaltyConfig{ViolationWindow: 30 * time.Second})

	var lastRemaining float64 = 4
	for i := 0; i < 3; i++ {
		res, err := store.Evaluate(context.Background(), req)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("call %d: expected allowed, got denied", i)
		}
		if res.RemainingTokens >= lastRemaining {
			t.Fatalf("call %d: expected remaining to strictly decrease, was %v now %v", i, lastRemaining, res.RemainingTokens)
		}
		lastRemaining = res.RemainingTokens
		time.Sleep(100 * time.Millisecond)
	}

	res, err := store.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("4th call: unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected the 4th call to be denied")
	}
	if res.RetryAfterSeconds <= 0 {
		t.Fatalf("expected a positive retry-after on denial, got %d", res.RetryAfterSeconds)
	}
	if res.Violations != 1 {
		t.Fatalf("expected exactly one violation recorded, got %d", res.Violations)
	}
}

// S2: Limit=2, Window=10s, Cost=2 — a single call exhausts the whole
// bucket, and the very next call denies with a retry-after close to a
// full window (nothing has refilled yet).
func TestTokenBucketLua_S2_HighCostExhaustsBucketImmediately(t *testing.T) {
	store, prefix := newTestStore(t)
	req := storeReq(prefix, 2, 10*time.Second, 2, domain.PenaltyConfig{})

	first, err := store.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("1st call: unexpected error: %v", err)
	}
	if !first.Allowed || first.RemainingTokens != 0 {
		t.Fatalf("expected 1st call allowed with remaining=0, got %+v", first)
	}

	second, err := store.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("2nd call: unexpected error: %v", err)
	}
	if second.Allowed {
		t.Fatalf("expected 2nd call to be denied")
	}
	if second.RetryAfterSeconds < 9 || second.RetryAfterSeconds > 10 {
		t.Fatalf("expected retry-after near a full 10s window, got %d", second.RetryAfterSeconds)
	}
}

// S3: escalating penalties. A denied burst is blocked for the first
// configured penalty duration; calling again while blocked returns
// blocked=true with a retry-after derived from the remaining PTTL,
// not a fresh bucket evaluation.
func TestTokenBucketLua_S3_EscalatingPenaltyBlocksSubsequentCalls(t *testing.T) {
	store, prefix := newTestStore(t)
	penalty := domain.PenaltyConfig{
		Enabled:         true,
		ViolationWindow: 30 * time.Second,
		Durations:       []time.Duration{2 * time.Second, 5 * time.Second, 15 * time.Second},
	}
	req := storeReq(prefix, 1, 10*time.Second, 1, penalty)

	first, err := store.Evaluate(context.Background(), req)
	if err != nil || !first.Allowed {
		t.Fatalf("1st call should be allowed, got %+v err=%v", first, err)
	}

	denied, err := store.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("2nd call: unexpected error: %v", err)
	}
	if denied.Allowed {
		t.Fatalf("expected 2nd call to be denied")
	}
	if !denied.Blocked {
		t.Fatalf("expected the 1st violation to trip a block, got %+v", denied)
	}
	if denied.RetryAfterSeconds < 1 || denied.RetryAfterSeconds > 2 {
		t.Fatalf("expected retry-after near the first penalty duration (2s), got %d", denied.RetryAfterSeconds)
	}

	blocked, err := store.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("3rd call (while blocked): unexpected error: %v", err)
	}
	if blocked.Allowed || !blocked.Blocked {
		t.Fatalf("expected the 3rd call to still be blocked, got %+v", blocked)
	}
	if blocked.Violations != 0 {
		t.Fatalf("a call short-circuited by the block gate must not record a new violation, got %d", blocked.Violations)
	}
}
