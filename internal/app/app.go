// Package app provides application lifecycle management for connector-sync.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/sync"
)

// SyncApp encapsulates all components needed to run the sync service.
// It provides lifecycle management and graceful shutdown capabilities.
type SyncApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the coordinator in the background and then the HTTP server.
// It blocks until the HTTP server stops or encounters an error.
func (app *SyncApp) Start() error {
	go func() {
		if err := app.components.SyncCoordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// RunSession runs one sync session in the foreground without starting the
// coordinator or the HTTP server.
func (app *SyncApp) RunSession(ctx context.Context, req sync.Request) (*sync.Result, error) {
	return app.components.SyncManager.Run(ctx, req)
}

// Journal returns the store of sessions, versions and conflicts
func (app *SyncApp) Journal() sync.Journal {
	return app.components.Journal
}

// Stop gracefully stops the application with the given timeout.
// It stops the coordinator, releases storage and shuts down the HTTP server.
func (app *SyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.components.SyncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Drain in-flight requests before storage is released
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		app.Close()
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	app.Close()
	slog.Info("Server shutdown complete")
	return nil
}

// Close releases storage without touching the HTTP server. It is used by
// one-shot commands that never call Start.
func (app *SyncApp) Close() {
	if app.cancelFunc != nil {
		app.cancelFunc()
		app.cancelFunc = nil
	}
}

// GetConfig returns the application configuration
func (app *SyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *SyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
