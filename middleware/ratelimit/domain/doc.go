// Package domain defines contracts and types for the access rate limiter
// core: policies, decisions, the store boundary, and the request-facing
// abstractions (principal, key resolver) that the application layer
// composes.
//
// This package does not depend on net/http. Requests are seen only
// through RequestView, which the HTTP adapter layer (the top-level
// ratelimit package) implements on top of *http.Request. That keeps the
// decision rules testable without spinning up a server and keeps this
// package reusable behind other transports.
package domain
