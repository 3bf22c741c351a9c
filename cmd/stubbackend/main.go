// Package main runs a stand-in for the local backend so the curl command
// printed by devtoken can be tried without the real service. It loads the
// same profile as devtoken, serves until SIGINT/SIGTERM, and then drains
// in-flight requests.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dskow/devtoken/internal/config"
	"github.com/dskow/devtoken/internal/logging"
	"github.com/dskow/devtoken/internal/stub"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML profile (default: built-in local backend profile)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load profile", "error", err)
			os.Exit(1)
		}
	}

	// Without a profile, log requests at info.
	if *configPath == "" {
		cfg.Logging.Level = "info"
	}
	logger, closer, err := logging.New(cfg.Logging, os.Stdout, os.Stderr)
	if err != nil {
		slog.Error("failed to open log output", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	for _, w := range cfg.Warnings {
		logger.Warn("profile warning", "message", w)
	}

	srv := &http.Server{
		Addr: cfg.Stub.Addr,
		Handler: stub.NewHandler(stub.Options{
			Secret: []byte(cfg.Signing.Secret),
			Path:   cfg.Target.Path,
		}, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting stub backend", "addr", srv.Addr, "path", cfg.Target.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "error", err)
		closer.Close()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Stub.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("stub backend stopped")
}
