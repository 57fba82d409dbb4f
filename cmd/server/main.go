// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/leadchat/internal/api"
	"github.com/tomtom215/leadchat/internal/auth"
	"github.com/tomtom215/leadchat/internal/config"
	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/store"
	"github.com/tomtom215/leadchat/internal/supervisor"
	"github.com/tomtom215/leadchat/internal/supervisor/services"
	ws "github.com/tomtom215/leadchat/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The default logger is live before Init.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("storage_driver", cfg.Storage.Driver).
		Str("session_store", cfg.Security.SessionStore).
		Msg("Starting LeadChat API")

	openCtx, openCancel := context.WithTimeout(ctx, 30*time.Second)
	st, err := store.Open(openCtx, cfg)
	openCancel()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	if cfg.Storage.UploadDir != "" {
		if err := os.MkdirAll(cfg.Storage.UploadDir, 0o750); err != nil {
			return fmt.Errorf("create upload dir: %w", err)
		}
	}

	sessions, err := auth.NewSessionStore(cfg.Security)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing session store")
		}
	}()

	secret := cfg.Security.SessionSecret
	if secret == "" {
		secret = randomSecret()
		logging.Warn().Msg("SESSION_SECRET is not set; using a random secret, dashboard sessions end on restart")
	}
	tokens, err := auth.NewTokenManager(secret)
	if err != nil {
		return fmt.Errorf("init session tokens: %w", err)
	}
	if cfg.Security.WidgetConfigAPIKey == "" {
		logging.Warn().Msg("WIDGET_CONFIG_API_KEY is not set; key-protected routes will answer 401")
	}
	authn := auth.NewAuthenticator(cfg.Security.WidgetConfigAPIKey, tokens, sessions, st, cfg.Security.SessionTTL)

	hub := ws.NewHub()
	handler := api.NewHandler(st, authn, hub, cfg)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(cfg.Security)), hub)

	srv := &http.Server{
		Addr:              cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(services.NewSessionCleanupService(sessions, time.Hour))
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, stopping services")
		// The tree sends exactly one value once every service has stopped.
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("supervisor tree: %w", err)
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}
	return nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
