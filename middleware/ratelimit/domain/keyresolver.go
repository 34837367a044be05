package domain

import "context"

// RequestView is the minimal read-only surface a key resolver, cost
// function or exempt predicate needs from an inbound request. The HTTP
// adapter layer implements this over *http.Request so this package
// never imports net/http.
type RequestView interface {
	// Header returns the first value of the named header, or "".
	Header(name string) string
	// RemoteAddr returns the transport-level remote address
	// (host[:port], as net/http.Request.RemoteAddr reports it).
	RemoteAddr() string
	// Principal returns the authenticated principal attached to the
	// request, if any. ok is false for anonymous requests.
	Principal() (Principal, bool)
}

// KeyResolver maps a request to a nullable stable identity string.
// Returning ("", false) means "no stable identity — skip limiting this
// request." It is the single capability every built-in and custom
// resolver implements; composition (CompositeResolver) is a container
// around it, not a different interface.
type KeyResolver func(ctx context.Context, view RequestView) (string, bool)
