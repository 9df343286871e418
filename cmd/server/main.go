package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"warden/internal/platform/config"
	"warden/internal/platform/logger"
	riskconfig "warden/internal/risk/config"
)

// main wires the engine, its stores and the HTTP surface, and keeps the
// server lifecycle small. Scoring logic lives in internal/risk.
func main() {
	config.LoadDotEnv()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid server configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Invalid thresholds are fatal: the engine must never start with a
	// silently weakened configuration.
	riskCfg, err := riskconfig.FromEnv(config.NewEnv(nil))
	if err != nil {
		log.Error("risk_config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, riskCfg, log); err != nil {
		log.Error("server_failed", "error", err)
		os.Exit(1)
	}
	log.Info("server_stopped")
}

func run(ctx context.Context, cfg config.Server, riskCfg *riskconfig.Config, log *slog.Logger) error {
	log.Info("initializing warden",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"guard_mode", cfg.UpstreamURL != "",
	)

	a, err := newApp(ctx, cfg, riskCfg, log)
	if err != nil {
		return err
	}

	router, err := newRouter(a)
	if err != nil {
		a.close(context.Background())
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	background, cancelBackground := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	a.startBackground(background, &wg)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server gracefully")
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("graceful shutdown failed", "error", shutdownErr)
	}
	a.stopConsumers(shutdownCtx)

	// Stopping the background context drains the write-behind queue.
	cancelBackground()
	wg.Wait()

	a.close(shutdownCtx)
	return err
}
