package domain

import (
	"strings"
	"time"
)

// PolicySnapshot is the immutable, atomically-published view of all
// known policies. The Policy Provider builds a fresh snapshot on every
// reconfiguration and publishes it as a unit; readers never see a torn
// mix of old and new policies.
type PolicySnapshot struct {
	Policies    map[string]*Policy // keyed by lower-cased policy name
	DefaultName string

	Version  uint64
	LoadedAt time.Time
}

// Get looks up a policy by name, case-insensitively. A nil return is
// not an error: it means "no limiting applies."
func (s *PolicySnapshot) Get(name string) *Policy {
	if s == nil || name == "" {
		return nil
	}
	return s.Policies[strings.ToLower(name)]
}

// Default returns the snapshot's default policy, or nil if none is
// configured.
func (s *PolicySnapshot) Default() *Policy {
	if s == nil {
		return nil
	}
	return s.Get(s.DefaultName)
}
