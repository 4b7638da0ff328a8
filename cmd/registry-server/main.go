package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/foundry/npmstore/internal/adapters/auth"
	"github.com/foundry/npmstore/internal/api/handlers"
	"github.com/foundry/npmstore/internal/config"
	"github.com/foundry/npmstore/internal/plugin"
	"github.com/foundry/npmstore/internal/util/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	bootLogger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "npmstore").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	base, logCloser, err := logging.NewFromConfig(cfg.Log)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to initialize logging")
	}
	defer logCloser.Close()
	logger := base.With().Str("service", "npmstore").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage.
	p, err := plugin.FromConfig(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to initialize storage")
	}
	defer p.Close()

	// Initialize authenticator.
	authenticator := auth.NewTokenAuth(cfg.Auth.Tokens)

	// Initialize HTTP handlers.
	handler := handlers.New(p, authenticator, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler.Router(),
	}

	// Graceful shutdown. In-flight uploads get a grace period to finish.
	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
			srv.Close()
		}
	}()

	logger.Info().
		Str("addr", addr).
		Str("backend", cfg.Storage.Backend).
		Str("packages_dir", cfg.Storage.PackagesDir).
		Msg("starting npmstore server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}
}
