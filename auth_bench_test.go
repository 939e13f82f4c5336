package goIssuer

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goIssuer/keys"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkValidateBearer(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b, keys.AlgEdDSA)
	defer cleanup()

	creds, err := engine.CreateSession(context.Background(), "bench-user")
	if err != nil {
		b.Fatalf("CreateSession failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.ValidateBearer(context.Background(), creds.AccessToken, ""); err != nil {
			b.Fatalf("ValidateBearer failed: %v", err)
		}
	}
}

func BenchmarkValidateBearerRS256(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b, keys.AlgRS256)
	defer cleanup()

	creds, err := engine.CreateSession(context.Background(), "bench-user")
	if err != nil {
		b.Fatalf("CreateSession failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.ValidateBearer(context.Background(), creds.AccessToken, ""); err != nil {
			b.Fatalf("ValidateBearer failed: %v", err)
		}
	}
}

func BenchmarkRefreshSession(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b, keys.AlgEdDSA)
	defer cleanup()

	creds, err := engine.CreateSession(context.Background(), "bench-user")
	if err != nil {
		b.Fatalf("CreateSession failed: %v", err)
	}
	refresh := creds.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := engine.RefreshSession(context.Background(), refresh)
		if err != nil {
			b.Fatalf("RefreshSession failed: %v", err)
		}
		refresh = res.Credentials.RefreshToken
	}
}

func BenchmarkCreateSession(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b, keys.AlgEdDSA)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		creds, err := engine.CreateSession(context.Background(), "bench-user")
		if err != nil {
			b.Fatalf("CreateSession failed: %v", err)
		}
		_ = engine.RevokeSession(context.Background(), creds.SessionID)
	}
}

func newBenchmarkEngine(tb testing.TB, alg keys.Algorithm) (*Engine, func()) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := defaultConfig()
	cfg.Token.Issuer = "https://issuer.bench"
	cfg.Token.AccessTTL = 10 * time.Minute
	cfg.Token.RefreshTTL = 10 * time.Minute
	cfg.Keys.Algorithm = alg
	cfg.Session.MaxSessionsPerUser = 1000
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = false

	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		mr.Close()
		tb.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}
