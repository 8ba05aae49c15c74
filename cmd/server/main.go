// Command server runs the document verification service: the HTTP API, the
// pipeline worker pool, and the connections to Postgres, Redis, Kafka, and
// the external forensics and anchor services. Business logic lives in the
// internal packages; main only wires dependencies and the lifecycle.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"docanchor/internal/anchor"
	anchormetrics "docanchor/internal/anchor/metrics"
	"docanchor/internal/content"
	contentmetrics "docanchor/internal/content/metrics"
	"docanchor/internal/document"
	"docanchor/internal/forensics"
	forensicsmetrics "docanchor/internal/forensics/metrics"
	"docanchor/internal/ledger"
	ledgermetrics "docanchor/internal/ledger/metrics"
	"docanchor/internal/ledger/stream"
	"docanchor/internal/platform/config"
	"docanchor/internal/platform/httpserver"
	"docanchor/internal/platform/logger"
	"docanchor/internal/platform/postgres"
	"docanchor/internal/platform/redis"
	httptransport "docanchor/internal/transport/http"
	"docanchor/internal/verification"
	verificationmetrics "docanchor/internal/verification/metrics"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	readyChecks := map[string]httptransport.HealthCheck{}

	// Stores: Postgres when configured, in-memory otherwise.
	var documents document.Store
	var ledgerStore ledger.Store
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		documents = document.NewPostgresStore(db)
		ledgerStore = ledger.NewPostgresStore(db)
		readyChecks["postgres"] = db.PingContext
		log.Info("using postgres stores")
	} else {
		documents = document.NewInMemoryStore()
		ledgerStore = ledger.NewInMemoryStore()
		log.Warn("postgres not configured, using in-memory stores")
	}

	// Duplicate index: Redis when configured, in-memory otherwise.
	var duplicateIndex content.DuplicateIndex
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		duplicateIndex = content.NewRedisIndex(redisClient)
		readyChecks["redis"] = redisClient.Health
		log.Info("using redis duplicate index")
	} else {
		duplicateIndex = content.NewInMemoryIndex()
		log.Warn("redis not configured, using in-memory duplicate index")
	}

	ledgerMetrics := ledgermetrics.New(registry)
	publisher, err := stream.New(cfg.Kafka, log, ledgerMetrics)
	if err != nil {
		return err
	}
	var streamPublisher ledger.StreamPublisher
	if publisher != nil {
		defer publisher.Close()
		streamPublisher = publisher
		log.Info("stage event stream enabled", slog.String("topic", cfg.Kafka.Topic))
	}

	stageLedger, err := ledger.New(ledgerStore, streamPublisher, log, ledgerMetrics)
	if err != nil {
		return err
	}
	addressor, err := content.NewAddressor(duplicateIndex, log, contentmetrics.New(registry))
	if err != nil {
		return err
	}
	forensicsGateway, err := forensics.NewGateway(
		forensics.NewClient(cfg.Forensics), cfg.Forensics, log, forensicsmetrics.New(registry))
	if err != nil {
		return err
	}
	anchorGateway, err := anchor.NewGateway(
		anchor.NewClient(cfg.Anchor), cfg.Anchor, log, anchormetrics.New(registry))
	if err != nil {
		return err
	}

	service, err := verification.New(cfg.Pipeline, documents, stageLedger,
		addressor, forensicsGateway, anchorGateway, log, verificationmetrics.New(registry))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service.Start(ctx)

	router := httptransport.NewRouter(httptransport.Deps{
		Verification: verification.NewHandler(service, forensicsGateway, log),
		Gatherer:     registry,
		Logger:       log,
		ReadyChecks:  readyChecks,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown signal received")

	// Stop intake first, then drain workers, then flush the stream (the
	// deferred Close handles the stream).
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Warn("worker drain incomplete", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
	return nil
}
