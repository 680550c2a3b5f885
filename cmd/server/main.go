// Package main is the entrypoint for the dealerdial API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/dealerdial/internal/ai"
	"github.com/kiranshivaraju/dealerdial/internal/api"
	"github.com/kiranshivaraju/dealerdial/internal/api/handler"
	mw "github.com/kiranshivaraju/dealerdial/internal/api/middleware"
	"github.com/kiranshivaraju/dealerdial/internal/archive"
	"github.com/kiranshivaraju/dealerdial/internal/cache"
	"github.com/kiranshivaraju/dealerdial/internal/config"
	"github.com/kiranshivaraju/dealerdial/internal/outreach"
	"github.com/kiranshivaraju/dealerdial/internal/ranking"
	"github.com/kiranshivaraju/dealerdial/internal/store"
	"github.com/kiranshivaraju/dealerdial/internal/telephony"
)

const (
	shutdownTimeout   = 30 * time.Second
	telephonyEventsAt = "/api/v1/telephony/events"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"ai_provider", cfg.AI.Provider,
		"telephony_provider", cfg.Telephony.Provider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Optional transcript archive
	var svcOpts []outreach.Option
	transcripts, err := archive.New(cfg.Archive)
	switch {
	case errors.Is(err, archive.ErrDisabled):
		slog.Info("transcript archive disabled")
	case err != nil:
		return fmt.Errorf("create transcript archive: %w", err)
	default:
		if err := transcripts.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("prepare transcript archive: %w", err)
		}
		svcOpts = append(svcOpts, outreach.WithArchive(transcripts))
		slog.Info("transcript archive enabled", "bucket", cfg.Archive.Bucket)
	}

	// 6. Telephony
	router := telephony.NewRouter()
	phone, err := newTelephonyClient(cfg.Telephony, router)
	if err != nil {
		return fmt.Errorf("create telephony client: %w", err)
	}
	slog.Info("telephony client initialized", "provider", phone.Name())

	// 7. Summarizer and ranking
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())
	summarizer := ai.NewSummarizer(aiProvider, cfg.AI.InferenceTimeout)

	weights, err := ranking.LoadWeights(cfg.Outreach.WeightsFile)
	if err != nil {
		return fmt.Errorf("load ranking weights: %w", err)
	}

	// 8. Outreach service
	dispatcher := outreach.NewDispatcher(phone, router, summarizer,
		rate.NewLimiter(rate.Limit(cfg.Telephony.DialRatePerSec), cfg.Telephony.DialBurst),
		outreach.DispatcherConfig{
			Concurrency: cfg.Outreach.ConcurrencyLimit,
			TaskTimeout: cfg.Outreach.TaskTimeout,
			CancelGrace: cfg.Outreach.CancelGrace,
			Region:      cfg.Telephony.DefaultRegion,
			CallbackURL: callbackURL(cfg.Telephony),
		})

	pgStore := store.NewPostgresStore(pool)
	svcOpts = append(svcOpts, outreach.WithLocker(redisCache))
	svc := outreach.NewService(pgStore, phone, dispatcher, ranking.New(weights), outreach.ServiceConfig{
		RunDeadline:    cfg.Outreach.RunDeadline,
		CancelGrace:    cfg.Outreach.CancelGrace,
		PublishTimeout: cfg.Outreach.PublishTimeout,
		StreamBuffer:   cfg.Outreach.StreamBuffer,
		TopN:           cfg.Outreach.TopN,
	}, svcOpts...)

	// 9. Build router with dependencies
	analyze := handler.NewAnalyzeHandler(svc, handler.DefaultKeepalive)
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.AnalyzePerHour),

		HealthHandler:    handler.NewHealthHandler(pgStore, redisCache),
		TriggerAnalyze:   analyze.Trigger,
		AnalyzeStatus:    analyze.Status,
		CancelAnalyze:    analyze.Cancel,
		TelephonyEvents:  handler.NewTelephonyEventsHandler(router, cfg.Telephony.WebhookSecret),
		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore, bcrypt.DefaultCost),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	// 10. Start HTTP server. WriteTimeout is cleared per request by the
	// event-stream writer, so it only bounds plain JSON responses.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, cancelling runs and draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Runs first: cancelling them ends their event streams, which lets
	// srv.Shutdown drain those connections.
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Warn("analysis runs did not finish before shutdown", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newTelephonyClient(cfg config.TelephonyConfig, router *telephony.Router) (telephony.Client, error) {
	switch cfg.Provider {
	case "http":
		return telephony.NewHTTPClient(cfg.BaseURL, cfg.APIKey, callbackURL(cfg), cfg.Timeout), nil
	case "simulated":
		return telephony.NewSimulatedClient(router), nil
	default:
		return nil, fmt.Errorf("unknown telephony provider %q", cfg.Provider)
	}
}

// callbackURL is where the voice bridge posts call notifications.
func callbackURL(cfg config.TelephonyConfig) string {
	if cfg.CallbackBaseURL == "" {
		return ""
	}
	return strings.TrimRight(cfg.CallbackBaseURL, "/") + telephonyEventsAt
}
