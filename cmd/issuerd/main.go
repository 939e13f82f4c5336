// Command issuerd serves a goIssuer engine over HTTP.
//
// Configuration is read from the environment: the goIssuer.Env* variables
// for the engine, plus REDIS_ADDR, HTTP_ADDR, ADMIN_TOKEN, LOG_LEVEL,
// SESSION_BACKEND (redis or postgres), DATABASE_URL and
// REFRESH_RATE_LIMIT (refresh requests per client per minute, 0 disables).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	goIssuer "github.com/MrEthical07/goIssuer"
	"github.com/MrEthical07/goIssuer/httpapi"
	"github.com/MrEthical07/goIssuer/internal/rate"
	promexport "github.com/MrEthical07/goIssuer/metrics/export/prometheus"
	"github.com/MrEthical07/goIssuer/session/pgstore"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("issuerd exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := goIssuer.ConfigFromEnv(os.LookupEnv)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: envOr("REDIS_ADDR", "localhost:6379")})
	defer rdb.Close()

	builder := goIssuer.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithAuditSink(goIssuer.NewJSONWriterSink(os.Stdout))

	switch backend := envOr("SESSION_BACKEND", "redis"); backend {
	case "redis":
	case "postgres":
		pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := pgstore.Migrate(ctx, pool); err != nil {
			return err
		}
		builder = builder.WithSessionBackend(pgstore.New(pool))
		logger.Info("using postgres session store")
	default:
		return fmt.Errorf("unsupported SESSION_BACKEND %q (supported: redis, postgres)", backend)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	refreshLimit, err := strconv.Atoi(envOr("REFRESH_RATE_LIMIT", "0"))
	if err != nil {
		return fmt.Errorf("REFRESH_RATE_LIMIT: %w", err)
	}

	router := httpapi.NewRouter(engine, httpapi.Options{
		Authorize: httpapi.StaticTokenAuthorizer(os.Getenv("ADMIN_TOKEN")),
		RefreshLimiter: rate.New(rdb, rate.Config{
			Prefix: "rl:refresh",
			Max:    refreshLimit,
			Window: time.Minute,
		}),
		Logger: logger,
	})
	if cfg.Metrics.Enabled {
		router.Handle("/metrics", promexport.NewExporter(engine).Handler()).Methods(http.MethodGet)
	}

	srv := &http.Server{
		Addr:              envOr("HTTP_ADDR", ":8080"),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "issuer", cfg.Token.Issuer, "alg", string(cfg.Keys.Algorithm))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
