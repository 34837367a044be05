// Package application contains the use cases (application rules) for
// the access rate limiter: policy normalization and lock-free lookup
// (PolicyProvider), key resolution (the Key Resolver Pipeline), and
// request orchestration (Driver, the Decision Driver).
//
// Nothing here depends on net/http; requests are seen through
// domain.RequestView. The HTTP adapter layer (the top-level ratelimit
// package) is the only place that knows about headers and status
// codes.
package application
