package test

import (
	"context"

	"github.com/redis/go-redis/v9"

	goPasskey "github.com/MrEthical07/goPasskey"
)

// ExampleNew demonstrates engine construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := goPasskey.DefaultConfig()
	cfg.Challenge.Secret = []byte("at-least-sixteen-byte-secret")
	cfg.RP.ID = "example.com"
	cfg.RP.DisplayName = "Example"
	cfg.RP.Origins = []string{"https://example.com"}

	engine, _ := goPasskey.New().
		WithConfig(cfg).
		WithRedis(rdb).
		Build()
	_ = engine
}

// ExampleEngine_BeginRegistration shows a typical ceremony entrypoint call
// and structured error handling.
func ExampleEngine_BeginRegistration() {
	var engine *goPasskey.Engine
	_, err := engine.BeginRegistration(context.Background(), "alice@example.com")
	if err != nil {
		_ = err
	}
}

// ExampleEngine_MetricsSnapshot shows how to read in-process metrics counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *goPasskey.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot
}
