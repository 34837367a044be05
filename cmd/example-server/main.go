package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accessrl/middleware/ratelimit"
	"accessrl/middleware/ratelimit/application"
	"accessrl/middleware/ratelimit/domain"
	"accessrl/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
)

// example-server shows the middleware wired directly into a handler
// tree, without a reverse proxy in front: two endpoints annotated with
// different policies/scopes/costs. WithJWTPrincipal is mounted with a
// nil key function, under which no bearer token verifies, so every
// request reaches the limiter as anonymous.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = rdb.Close() }()

	store, err := infra.NewRedisStore(ctx, rdb)
	if err != nil {
		log.Fatalf("redis store: %v", err)
	}
	defer store.Close()

	provider := application.NewPolicyProvider(nil)
	policies := map[string]*domain.Policy{
		"public-read": {
			Name:    "public-read",
			Limit:   20,
			Window:  time.Minute,
			Enabled: true,
		},
		"authenticated-write": {
			Name:       "authenticated-write",
			Limit:      100,
			Window:     time.Minute,
			Cost:       2,
			Enabled:    true,
			FailClosed: true,
		},
	}
	if err := provider.Publish(policies, "inline"); err != nil {
		log.Fatalf("publish policies: %v", err)
	}

	driver := &application.Driver{Provider: provider, Store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/read", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/write", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created\n"))
	})

	var h http.Handler = mux
	h = ratelimit.Middleware(ratelimit.Options{Driver: driver, AddRateLimitHeaders: true})(h)
	h = ratelimit.WithJWTPrincipal(nil)(h)

	readRoute := ratelimit.WithPolicy("public-read")(h)
	writeRoute := ratelimit.WithPolicy("authenticated-write")(ratelimit.WithScope("write")(ratelimit.WithCost(2)(h)))

	top := http.NewServeMux()
	top.Handle("/read", readRoute)
	top.Handle("/write", writeRoute)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           top,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
