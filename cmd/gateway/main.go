package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"accessrl/middleware/ratelimit"
	"accessrl/middleware/ratelimit/application"
	"accessrl/middleware/ratelimit/domain"
	"accessrl/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := readConfig()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logger.Fatal("invalid UPSTREAM_URL", zap.Error(err))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr, Password: cfg.redisPassword, DB: cfg.redisDB})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := infra.NewRedisStore(ctx, rdb)
	if err != nil {
		logger.Fatal("redis store init error", zap.Error(err))
	}
	defer store.Close()

	provider := application.NewPolicyProvider(nil)
	loader := infra.NewConfigLoader(provider, logger)
	if err := loader.LoadAndWatch(cfg.policyConfigPath, ctx.Done()); err != nil {
		logger.Fatal("policy config load error", zap.Error(err))
	}
	defer loader.Close()

	metrics := infra.NewPrometheusMetrics(nil)

	var sinks []domain.MetricsSink
	sinks = append(sinks, metrics)
	if cfg.analyticsEnabled {
		analytics := infra.NewRedisAnalyticsSink(rdb, infra.WithAnalyticsPrefix(cfg.analyticsPrefix))
		sinks = append(sinks, newAnalyticsMetricsBridge(analytics, logger))
	}

	driver := &application.Driver{
		Provider:  provider,
		Store:     store,
		Metrics:   application.SafeSink{Sink: multiSink(sinks), OnPanic: logPanic(logger)},
		Logger:    infra.NewZapLogger(logger),
		KeyPrefix: cfg.keyPrefix,
	}

	h := http.Handler(proxy)
	h = ratelimit.Middleware(ratelimit.Options{
		Driver:              driver,
		AddRateLimitHeaders: cfg.addHeaders,
		DefaultRejectionBody: application.RejectionBody{
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte("rate limit exceeded\n"),
		},
	})(h)

	mux := http.NewServeMux()
	mux.Handle("/", h)
	if cfg.metricsEnabled {
		mux.Handle(cfg.metricsPath, promhttp.Handler())
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()),
		zap.String("policyConfigPath", cfg.policyConfigPath),
		zap.Bool("metricsEnabled", cfg.metricsEnabled),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

// multiSink fans a decision out to every sink in order. A panic in one
// is handled by the SafeSink wrapping the whole thing at the call site
// in main(), not here.
type multiSinkFanout []domain.MetricsSink

func multiSink(sinks []domain.MetricsSink) domain.MetricsSink { return multiSinkFanout(sinks) }

func (m multiSinkFanout) OnAllowed(d domain.Decision) {
	for _, s := range m {
		s.OnAllowed(d)
	}
}
func (m multiSinkFanout) OnLimited(d domain.Decision) {
	for _, s := range m {
		s.OnLimited(d)
	}
}
func (m multiSinkFanout) OnBlocked(d domain.Decision) {
	for _, s := range m {
		s.OnBlocked(d)
	}
}

func (m multiSinkFanout) ObserveStoreCall(policy string, d time.Duration) {
	for _, s := range m {
		s.ObserveStoreCall(policy, d)
	}
}

// analyticsMetricsBridge adapts a domain.AnalyticsSink onto
// domain.MetricsSink so it can ride the same per-decision dispatch the
// Decision Driver already performs, recording each call in a detached
// goroutine since Record does its own Redis round trip.
type analyticsMetricsBridge struct {
	sink   domain.AnalyticsSink
	logger *zap.Logger
}

func newAnalyticsMetricsBridge(sink domain.AnalyticsSink, logger *zap.Logger) domain.MetricsSink {
	return analyticsMetricsBridge{sink: sink, logger: logger}
}

func (b analyticsMetricsBridge) record(d domain.Decision) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := b.sink.Record(ctx, domain.AnalyticsEvent{
			Policy: d.PolicyName, Scope: d.Scope, KeyHash: d.KeyHash,
			Allowed: d.Allowed, Blocked: d.Blocked, Violations: d.Violations,
		}); err != nil {
			b.logger.Warn("analytics record failed", zap.Error(err))
		}
	}()
}

func (b analyticsMetricsBridge) OnAllowed(d domain.Decision) { b.record(d) }
func (b analyticsMetricsBridge) OnLimited(d domain.Decision) { b.record(d) }
func (b analyticsMetricsBridge) OnBlocked(d domain.Decision) { b.record(d) }

// ObserveStoreCall is a no-op: analytics only cares about decision
// outcomes, not store latency, which is already covered by
// PrometheusMetrics in the same fanout.
func (b analyticsMetricsBridge) ObserveStoreCall(string, time.Duration) {}

func logPanic(logger *zap.Logger) application.PanicHandler {
	return func(method string, recovered any) {
		logger.Error("metrics sink panicked", zap.String("method", method), zap.Any("recovered", recovered))
	}
}

type config struct {
	listenAddr       string
	upstreamURL      string
	policyConfigPath string
	keyPrefix        string
	addHeaders       bool

	redisAddr     string
	redisPassword string
	redisDB       int

	metricsEnabled bool
	metricsPath    string

	analyticsEnabled bool
	analyticsPrefix  string
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.policyConfigPath = getenvDefault("POLICY_CONFIG_PATH", "./policies.yaml")
	cfg.keyPrefix = getenvDefault("RATE_KEY_PREFIX", "elf:accessrl")
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)

	cfg.redisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)

	cfg.metricsEnabled = getenvBoolDefault("METRICS_ENABLED", true)
	cfg.metricsPath = getenvDefault("METRICS_PATH", "/metrics")

	cfg.analyticsEnabled = getenvBoolDefault("ANALYTICS_ENABLED", false)
	cfg.analyticsPrefix = getenvDefault("ANALYTICS_PREFIX", "accessrl:analytics")

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
