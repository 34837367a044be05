package domain

import "time"

// Decision is produced once per request by the Decision Driver. It is
// immutable once constructed.
type Decision struct {
	PolicyName string
	Scope      string
	// KeyHash is the hex SHA-256 fingerprint of the resolved caller key.
	KeyHash string

	EffectiveLimit int64
	// Remaining is floored to an integer >= 0. The block-gate early
	// exit reports remainingTokens=-1 internally; the driver floors it
	// here, per spec §9's open question.
	Remaining int64
	Cost      int64

	RetryAfter time.Duration
	Reset      time.Time

	Allowed    bool
	Blocked    bool
	Violations int64
}
