package domain

import (
	"context"
	"time"
)

// StoreRequest is the wire contract between the Decision Driver and the
// Store Core. BucketKey/BlockKey/ViolationKey are already prefixed,
// scoped and fingerprinted by the driver (spec §4.C step 9); the store
// never derives a key itself.
type StoreRequest struct {
	BucketKey     string
	BlockKey      string
	ViolationKey  string
	Capacity      int64
	Window        time.Duration
	Cost          int64
	Penalty       PenaltyConfig
}

// StoreResult is the atomic evaluation outcome, produced entirely
// server-side (the store's clock, not the caller's, is authoritative).
type StoreResult struct {
	Allowed           bool
	Blocked           bool
	RemainingTokens   float64
	RetryAfterSeconds int64
	ResetAfterSeconds int64
	Violations        int64
}

// Store is the Store Core boundary: a single atomic token-bucket +
// penalty-escalation evaluation per call. Implementations MUST execute
// the full algorithm (spec §4.D) as one atomic unit against the shared
// key-value store; partial updates must never be observable.
type Store interface {
	Evaluate(ctx context.Context, req StoreRequest) (StoreResult, error)
}

// StoreProtocolError means the store's response didn't match the
// expected six-element result shape. It is a bug signal, not a load
// signal, and must never be silently treated as a denial.
type StoreProtocolError struct {
	Reason string
}

func (e *StoreProtocolError) Error() string {
	return "accessrl: store protocol violation: " + e.Reason
}
