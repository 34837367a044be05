// Package infra contains concrete implementations of the contracts
// defined in domain: the Redis-backed Store Core (RedisStore, plus the
// embedded token-bucket Lua script), a Prometheus MetricsSink, a
// viper/fsnotify-backed policy ConfigLoader, a zap-backed Logger, a
// JWT-claims-backed Principal, and two AnalyticsSink implementations
// (in-memory and Redis).
package infra
