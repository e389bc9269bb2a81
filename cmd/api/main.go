package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/hostelops/internal/api"
	"github.com/punchamoorthee/hostelops/internal/audit"
	"github.com/punchamoorthee/hostelops/internal/auth"
	"github.com/punchamoorthee/hostelops/internal/cache"
	"github.com/punchamoorthee/hostelops/internal/config"
	"github.com/punchamoorthee/hostelops/internal/health"
	"github.com/punchamoorthee/hostelops/internal/service"
	"github.com/punchamoorthee/hostelops/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Data layer
	var st store.Store
	var sink audit.Sink = audit.LogSink{Logger: logger}
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pgSt, err := store.NewPostgresStore(ctx, cfg.Database.Source, cfg.Database.MaxConns, cfg.Allocation.LockTimeout)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		if err := store.NewMigrator(pgSt.Db, logger).Run(ctx); err != nil {
			log.Fatalf("Migrations failed: %v", err)
		}
		st = pgSt
		if cfg.Audit.Sink == config.DriverPostgres {
			sink = audit.NewPostgresSink(pgSt.Db)
		}
	case config.DriverMemory:
		logger.Warn("using in-memory store; state is lost on restart")
		st = store.NewMemoryStore(cfg.Allocation.LockTimeout)
	}
	defer st.Close()

	summaryCache, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.TTL, logger)
	if err != nil {
		logger.Warn("redis unavailable, dashboard cache disabled", "addr", cfg.Redis.Addr, "error", err)
	}
	defer summaryCache.Close()

	dispatcher := audit.NewDispatcher(sink, logger, cfg.Audit.BufferSize, cfg.Audit.Timeout)

	// Services
	opts := []service.Option{
		service.WithAudit(dispatcher),
		service.WithSummaryInvalidator(summaryCache),
		service.WithLogger(logger),
	}
	engine := service.NewEngine(st, opts...)
	payments := service.NewPaymentService(st, st, opts...)
	directory := service.NewDirectoryService(st, st, summaryCache, logger)
	admin := service.NewAdminService(st)

	handler := api.NewHandler(engine, payments, directory, admin, health.NewHealthChecker(st), logger)
	tokens := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	router := api.NewRouter(handler, api.NewAuthMiddleware(tokens), cfg.Server.CorsAllowedOrigins, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "env", cfg.Env, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	// After the server stops no new events can be emitted.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("audit drain incomplete", "error", err)
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
