package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"catalog-lineage/internal/app"
	"catalog-lineage/internal/config"
	internaldb "catalog-lineage/internal/db"
	"catalog-lineage/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatalf("lineage server: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "warning", w)
	}

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Stdout:         cfg.Telemetry.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", "error", err)
		}
	}()

	dialect, err := internaldb.ParseDialect(cfg.DB.Driver)
	if err != nil {
		return err
	}
	writeDB, readDB, err := internaldb.Open(ctx, dialect, cfg.DB.Path, cfg.DB.URL, cfg.DB.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("open graph store: %w", err)
	}
	defer writeDB.Close() //nolint:errcheck
	if readDB != writeDB {
		defer readDB.Close() //nolint:errcheck
	}

	logger.Info("running migrations", "driver", string(dialect))
	if err := internaldb.RunMigrations(writeDB, dialect); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	application, err := app.New(ctx, app.Deps{
		Cfg:     cfg,
		WriteDB: writeDB,
		ReadDB:  readDB,
		Dialect: dialect,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if err := application.Scheduler.Start(application.ManifestSources()); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer application.Scheduler.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.Lineage.QueryTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", cfg.ListenAddr, "version", version)
		if cfg.SeedDemo {
			logger.Info("try: curl 'http://" + curlHostForListenAddr(cfg.ListenAddr) +
				"/v1/workspaces/" + app.DemoWorkspace + "/lineage?asset_id=orders&predecessor_depth=2&successor_depth=1'")
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// curlHostForListenAddr turns a listen address into a host usable in an
// example URL. Wildcard and empty hosts map to localhost.
func curlHostForListenAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return "localhost:8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
