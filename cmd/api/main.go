package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/PratikDhanave/trigger-contract-service/internal/config"
	"github.com/PratikDhanave/trigger-contract-service/internal/httpserver"
	"github.com/PratikDhanave/trigger-contract-service/internal/logging"
	"github.com/PratikDhanave/trigger-contract-service/internal/pipeline"
	"github.com/PratikDhanave/trigger-contract-service/internal/store"
)

const shutdownTimeout = 10 * time.Second

// main boots the service: config → DB → schema → pipeline → HTTP server.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load runtime config from environment (DB_URL, API_KEYS, ...).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, levelErr := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(level, cfg.LogFormat)
	if levelErr != nil {
		logger.Warn("falling back to info logging", "error", levelErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to durable storage (Postgres) using a connection pool.
	db, err := store.NewPostgresStore(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	// Ensure required tables/indexes exist so `docker compose up --build` is enough.
	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(pipeline.NewMetrics(reg)),
		pipeline.WithRecorder(db),
		pipeline.WithDefaultTimeout(cfg.SessionTimeout),
		pipeline.WithRetention(cfg.ClosedRetention),
		pipeline.WithShutdownTimeout(shutdownTimeout),
	}
	if cfg.RedisURL != "" {
		client, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, pipeline.WithTombstones(
			store.NewRedisTombstones(client, cfg.RedisPrefix, cfg.TombstoneTTL),
		))
		logger.Info("closed sessions shared through redis", "replica_id", cfg.ReplicaID)
	}

	manager := pipeline.NewManager(opts...)
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		manager.Run(ctx)
	}()

	router := httpserver.NewRouter(httpserver.Deps{
		APIKeys:  cfg.APIKeys,
		Manager:  manager,
		Outcomes: db,
		Ready:    db,
		Gatherer: reg,
		Logger:   logger,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	// Run returns once every session is recorded or shutdownTimeout passes,
	// so the pool is still open for the last outcomes.
	<-managerDone
	return nil
}
