// Package ratelimit provides the net/http adapter for the access rate
// limiter.
//
// Layers:
//
//   - domain: contracts and types (no net/http dependency)
//   - application: policy normalization, key resolution, the Decision
//     Driver, and the Response Shaper's pure header/body logic (no
//     net/http dependency)
//   - infra: concrete implementations — Redis Store Core, Prometheus
//     metrics, viper/fsnotify policy config, zap logging, JWT principal
//   - ratelimit (this package): the http.Handler middleware, the
//     *http.Request -> domain.RequestView adapter, and the endpoint
//     metadata annotation helpers
//
// Request flow: Middleware extracts a RequestView from *http.Request,
// calls Driver.Decide, then Shape()s the resulting Decision into
// headers/status/body and writes them. Header writes always precede
// any body write.
package ratelimit
