package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"edgeguard/internal/platform/config"
	"edgeguard/internal/platform/logger"
	secconfig "edgeguard/internal/security/config"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}
	log := logger.New(cfg.LogLevel)

	secCfg, err := secconfig.Load(cfg.SecurityConfigPath)
	if err != nil {
		log.Error("invalid security configuration", "error", err, "path", cfg.SecurityConfigPath)
		return 1
	}

	log.Info("initializing edgeguard",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"upstream", cfg.UpstreamURL,
		"database", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
		"kafka", cfg.Kafka.Brokers != "",
	)
	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is empty; admin endpoints are unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, secCfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		return 1
	}
	defer app.close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := app.cleanup.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if app.redis != nil {
		g.Go(func() error {
			return app.redis.RecordPoolStats(gctx, 15*time.Second)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return 1
	}
	log.Info("server stopped")
	return 0
}
