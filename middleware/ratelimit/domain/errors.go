package domain

import "errors"

// ErrUnknownPolicy names the unknown-policy case. PolicySnapshot lookups
// do not return it: Get returns nil for a name that isn't in the
// snapshot, and the Decision Driver logs a warning once per request and
// bypasses limiting (spec §7).
var ErrUnknownPolicy = errors.New("accessrl: unknown policy")

// ErrNoIdentity signals both the policy resolver and the fallback
// resolver returned no stable identity. Bypass is silent: a client that
// cannot be identified cannot be penalized (spec §7).
var ErrNoIdentity = errors.New("accessrl: no resolvable identity")

// StoreTransportError wraps a transport/timeout/protocol-adjacent
// failure talking to the store. It is distinct from
// StoreProtocolError: this is "the store didn't answer", that is "the
// store answered something we cannot parse."
type StoreTransportError struct {
	Err error
}

func (e *StoreTransportError) Error() string {
	return "accessrl: store transport failure: " + e.Err.Error()
}

func (e *StoreTransportError) Unwrap() error { return e.Err }
