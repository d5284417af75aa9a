// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Auto-reply service
//
// Entry point for the inbound email auto-reply service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to Redis (and PostgreSQL when the ledger dedup backend is used)
//  3. Builds the triage pipeline and the AgentMail transport
//  4. Serves the webhook and contact endpoints
//  5. Serves health and metrics endpoints
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/belphia/autoreply/internal/agentmail"
	"github.com/belphia/autoreply/internal/config"
	"github.com/belphia/autoreply/internal/dedup"
	"github.com/belphia/autoreply/internal/metrics"
	"github.com/belphia/autoreply/internal/queue"
	"github.com/belphia/autoreply/internal/triage"
	"github.com/belphia/autoreply/internal/webhook"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting auto-reply service",
		"inbox", cfg.InboxID,
		"dedup_backend", cfg.DedupBackend,
		"webhook_port", cfg.WebhookPort,
	)

	if cfg.APIKey == "" {
		slog.Warn("AGENTMAIL_API_KEY is not set; eligible messages will fail with missing-credential")
	}

	composerCfg, err := cfg.Reply.ComposerConfig()
	if err != nil {
		slog.Error("invalid reply configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.ContactQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Dedup ---
	var (
		pgPool  *pgxpool.Pool
		deduper triage.Deduper
	)
	switch cfg.DedupBackend {
	case config.DedupPostgres:
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		ledger, err := dedup.NewLedger(ctx, pgPool, cfg.DedupTTL)
		if err != nil {
			slog.Error("failed to initialise dedup ledger", "error", err)
			os.Exit(1)
		}
		go ledger.RunPruner(ctx, time.Hour)
		deduper = ledger
	case config.DedupRedis:
		deduper = dedup.NewRedisFilter(rdb, cfg.DedupTTL)
	default:
		slog.Warn("reply dedup disabled; provider redeliveries will be answered again")
	}

	// --- Outbound transport ---
	var transport triage.Transport
	if cfg.APIKey != "" {
		transport = agentmail.NewClient(ctx, cfg.APIKey, cfg.AgentMailBaseURL, cfg.SendTimeout)
	}

	// --- Triage pipeline ---
	pipeline := triage.NewPipeline(
		triage.NewClassifier(cfg.InboxID, cfg.SystemSenderMarkers),
		triage.NewComposer(composerCfg),
		triage.NewCoordinator(triage.CoordinatorConfig{
			InboxID:    cfg.InboxID,
			Credential: cfg.APIKey,
			Transport:  transport,
			Dedup:      deduper,
		}),
	)

	// --- Webhook server ---
	limiter := webhook.NewIPLimiter(cfg.ContactRatePerMinute)
	go limiter.RunSweeper(ctx)

	handler := webhook.NewHandler(pipeline, publisher, limiter)
	ready, err := webhook.Serve(ctx, cfg.WebhookPort, handler)
	if err != nil {
		slog.Error("failed to start webhook server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Health + Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		// Check Postgres
		if pgPool != nil {
			if err := pgPool.Ping(r.Context()); err != nil {
				http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})
	mux.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stops the webhook server and background loops

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("health server listening", "addr", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Webhook shutdown runs concurrently; let it drain before closing Redis.
	time.Sleep(time.Second)
	rdb.Close()

	slog.Info("auto-reply service stopped")
}
