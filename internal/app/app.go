// Package app provides application lifecycle management for the seat monitor.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/stacklok/seatwatch/internal/config"
	"github.com/stacklok/seatwatch/internal/monitor"
)

// SeatwatchApp encapsulates all components needed to run the monitor.
// It provides lifecycle management and graceful shutdown capabilities.
type SeatwatchApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx         context.Context
	cancelFunc  context.CancelFunc
	releaseOnce sync.Once
}

// Start starts the monitoring coordinator in the background and serves HTTP.
// This method blocks until the HTTP server stops or encounters an error.
func (app *SeatwatchApp) Start() error {
	go func() {
		if err := app.components.Coordinator.Start(app.ctx); err != nil {
			slog.Error("Monitoring coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// It stops the coordinator, shuts down the HTTP server and then releases the
// store and transport.
func (app *SeatwatchApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.components.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop monitoring coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)
	app.Close()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// Close releases the store and transport without touching the HTTP server.
// Commands that use the monitor directly call it instead of Stop.
func (app *SeatwatchApp) Close() {
	app.releaseOnce.Do(func() {
		if app.cancelFunc != nil {
			app.cancelFunc()
		}
	})
}

// GetConfig returns the application configuration
func (app *SeatwatchApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *SeatwatchApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Monitor returns the monitoring service
func (app *SeatwatchApp) Monitor() monitor.Service {
	return app.components.Monitor
}
