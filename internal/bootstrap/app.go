package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/middleware"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/safego"
)

// NOTE: The App struct and NewApp function are defined in providers.go for Wire.
// This file only contains methods on App, like Run().

// Run starts the application: it mounts the operational endpoints and the
// route table, launches the session sweep loop, and blocks serving HTTP until
// a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	appCfg := a.configProvider.Get()
	a.logger.Info(ctx, "Starting application", "service_name", appCfg.App.ServiceName, "version", appCfg.App.Version)

	healthHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"OK"}`)
	})
	a.httpServeMux.Handle("GET /health", middleware.RequestID(healthHandler))

	readyHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ready := true
		dependenciesStatus := make(map[string]string)

		// Postgres is the source of truth; without it the service cannot work.
		if err := a.pgPool.Ping(r.Context()); err == nil {
			dependenciesStatus["postgres"] = "connected"
		} else {
			dependenciesStatus["postgres"] = "disconnected"
			ready = false
			a.logger.Warn(r.Context(), "Readiness check failed: Postgres ping failed", "error", err.Error())
		}

		// The cache is an optimization layer. A disconnected cache degrades
		// performance, not availability, so it never fails readiness.
		if a.cacheStore.IsConnected() {
			dependenciesStatus["cache"] = "connected"
		} else {
			dependenciesStatus["cache"] = "degraded"
		}

		response := struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		}{
			Dependencies: dependenciesStatus,
		}

		if ready {
			response.Status = "READY"
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = "NOT_READY"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			a.logger.Error(r.Context(), "Failed to encode readiness response", "error", err.Error())
		}
	})
	a.httpServeMux.Handle("GET /ready", middleware.RequestID(readyHandler))

	a.httpServeMux.Handle("GET /metrics", middleware.RequestID(promhttp.Handler()))
	a.logger.Info(ctx, "Prometheus metrics endpoint registered at /metrics")

	a.httpServeMux.Handle("/", a.router)

	safego.Execute(ctx, a.logger, "SessionSweepLoop", func() {
		a.runSessionSweep(ctx)
	})

	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 30 * time.Second
		if a.configProvider.Get().App.ShutdownTimeoutSeconds > 0 {
			shutdownTimeout = time.Duration(a.configProvider.Get().App.ShutdownTimeoutSeconds) * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", appCfg.Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info(ctx, "Application shut down gracefully or server closed.")
	return nil
}

// runSessionSweep periodically removes expired session records. The cadence
// comes from config; the loop exits with the application context.
func (a *App) runSessionSweep(ctx context.Context) {
	interval := time.Duration(a.configProvider.Get().Session.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info(context.Background(), "SessionSweepLoop shutting down due to context cancellation.")
			return
		case <-ticker.C:
			if _, err := a.sessionManager.CleanupExpiredSessions(ctx); err != nil {
				a.logger.Error(ctx, "Session sweep failed", "error", err.Error())
			}
		}
	}
}
