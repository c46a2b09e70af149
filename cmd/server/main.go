package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/clearledger/karbonsync/internal/config"
	"github.com/clearledger/karbonsync/internal/db"
	"github.com/clearledger/karbonsync/internal/karbon"
	"github.com/clearledger/karbonsync/internal/logging"
	"github.com/clearledger/karbonsync/internal/middleware"
	"github.com/clearledger/karbonsync/internal/registry"
	"github.com/clearledger/karbonsync/internal/repository"
	"github.com/clearledger/karbonsync/internal/syncer"
	"github.com/clearledger/karbonsync/internal/webhook"
)

func main() {
	logger := logging.New(os.Getenv("KARBONSYNC_LOG_LEVEL"), os.Getenv("KARBONSYNC_LOG_PRETTY") == "true")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Configuration is loaded and validated once, before any sync or webhook
	// handler can run. Missing credentials fail here, not mid-request.
	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	reg, err := registry.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid entity registry")
	}

	client, err := karbon.NewClient(karbon.Config{
		BaseURL:           cfg.Karbon.BaseURL,
		AccessKey:         cfg.Karbon.AccessKey,
		BearerToken:       cfg.Karbon.BearerToken,
		RequestTimeout:    time.Duration(cfg.Karbon.RequestTimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.Karbon.RequestsPerSecond,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build source API client")
	}

	pager := karbon.NewPager(client, cfg.Karbon.MaxPages, logger)

	recordRepo := repository.NewRecordRepository(conn.Pool)
	runRepo := repository.NewSyncRunRepository(conn.Pool)
	deliveryRepo := repository.NewWebhookDeliveryRepository(conn.Pool)

	orchestrator := syncer.NewOrchestrator(pager, reg, recordRepo, runRepo, cfg.Karbon.PageSize, logger)
	ingestor := webhook.NewIngestor(reg, client, recordRepo, deliveryRepo, cfg.Karbon.WebhookSecret, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	logRequests := middleware.Logging(logger)

	mux := http.NewServeMux()
	mux.Handle("/api/sync", syncer.NewHTTPHandler(orchestrator))
	mux.Handle("/api/sync/runs", syncer.NewRunsHandler(runRepo))
	mux.Handle("/api/webhooks/karbon", webhook.NewHTTPHandler(ingestor))
	mux.Handle("/api/webhooks/deliveries", webhook.NewDeliveriesHandler(deliveryRepo))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.Pool.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      logRequests(corsHandler.Handler(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting karbonsync server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}
