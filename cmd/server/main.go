package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/api"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/batch"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/config"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/events"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/rates"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/store"
)

func main() {
	godotenv.Load() // .env is optional; real env wins

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Store ---
	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Exchange rates: external provider behind a TTL cache ---
	provider := rates.NewHTTPProvider(
		cfg.RateAPIBaseURL,
		cfg.RateAPIKey,
		cfg.ProviderTimeout,
		cfg.ProviderRetries,
		cfg.ProviderBackoff,
	)

	var rateSrc rates.Provider
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		rateSrc = rates.NewRedisCache(provider, rdb, cfg.RateCacheTTL)
		slog.Info("shared Redis rate cache enabled", "ttl", cfg.RateCacheTTL)
	} else {
		rateSrc = rates.NewCache(provider, cfg.RateCacheTTL)
	}

	// --- Event publishing: WebSocket hub plus optional broker ---
	hub := events.NewHub()
	go hub.Run()

	sinks := events.Multi{hub}
	if cfg.RabbitURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.RabbitURL, cfg.EventExchange)
		if err != nil {
			slog.Error("rabbitmq connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() { rp.Close() })
		sinks = append(sinks, rp)
		slog.Info("event broker enabled", "exchange", cfg.EventExchange)
	} else {
		slog.Warn("RABBITMQ_URL not set, events go to the WebSocket feed only")
	}

	// --- Orchestrator ---
	orchestrator := batch.NewOrchestrator(st, rateSrc, sinks, batch.Config{
		Workers:     cfg.WorkerPoolSize,
		RunDeadline: cfg.BatchDeadline,
		Policy:      batch.MaxFailureRatio(cfg.FailureRatio),
	})

	// --- HTTP server ---
	router := api.Router(api.NewService(st, orchestrator, cfg.DefaultBankID), hub)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("risk engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down risk engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("risk engine stopped")
}
