// Package main provides the entry point for the danmaku relay.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakurairo/danmaku-relay/internal/api"
	"github.com/sakurairo/danmaku-relay/internal/bililive"
	"github.com/sakurairo/danmaku-relay/internal/buffer"
	"github.com/sakurairo/danmaku-relay/internal/config"
	"github.com/sakurairo/danmaku-relay/internal/forward"
	"github.com/sakurairo/danmaku-relay/internal/session"
	"github.com/sakurairo/danmaku-relay/internal/version"
)

func main() {
	// 1. Load .env when present, then environment configuration.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found -- environment and defaults will be used")
	}
	cfg := config.Load()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// 2. Process-lifetime singletons: the message ring and the forwarder.
	// Sessions come and go across /configure calls; these are shared by
	// reference and survive them all.
	ring := buffer.New(buffer.DefaultCapacity)

	var forwardOpts []forward.Option
	if cfg.ForwardWorkers > 0 {
		forwardOpts = append(forwardOpts, forward.WithMaxInFlight(cfg.ForwardWorkers))
	}
	forwarder := forward.New(cfg.WebhookURL.Value(), forwardOpts...)
	if forwarder.Enabled() {
		logger.Info("webhook forwarding enabled")
	} else {
		logger.Info("webhook not configured, forwarding disabled")
	}

	// 3. Session manager over the open-live dialer.
	dialer := bililive.NewDialer(bililive.WithLogger(logger))
	manager := session.NewManager(dialer, ring,
		session.WithForwarder(forwarder),
		session.WithLogger(logger),
	)

	// 4. Auto-start when the environment carries a complete credential
	// set, as the upstream service did. Failure is not fatal: the relay
	// stays reachable and can be configured over HTTP.
	if cfg.HasCredentials() {
		startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := manager.Configure(startCtx, cfg.Credentials); err != nil {
			logger.Error("auto-start from environment failed", "error", err)
		}
		cancel()
	} else {
		logger.Info("no credentials in environment, waiting for /configure")
	}

	server := api.NewServer(cfg.Addr, manager,
		api.WithAllowedOrigins(cfg.AllowedOrigins),
		api.WithLogger(logger),
	)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("danmaku relay started", "version", version.String(), "addr", cfg.Addr)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-done:
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := manager.Stop(shutdownCtx); err != nil && err != session.ErrNotRunning {
		logger.Error("session stop", "error", err)
	}
	if err := forwarder.Close(shutdownCtx); err != nil {
		logger.Error("forwarder close", "error", err)
	}

	logger.Info("relay stopped")
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
