package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/accessd/internal/config"
	"github.com/vyrodovalexey/accessd/internal/observability"
)

// run serves until SIGINT or SIGTERM and then shuts down gracefully.
func run(ctx context.Context, app *application, configPath string) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.server.Start(ctx)
	}()

	watcher := startConfigWatcher(ctx, app, configPath)

	failed := false
	select {
	case <-ctx.Done():
		app.logger.Info("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			failed = true
			app.logger.Error("server failed", observability.Error(err))
		}
	}

	shutdown(app, watcher)

	if failed {
		os.Exit(1)
	}
}

// startConfigWatcher starts hot reload when a configuration file is used.
func startConfigWatcher(ctx context.Context, app *application, configPath string) *config.Watcher {
	if configPath == "" {
		return nil
	}

	watcher, err := config.NewWatcher(configPath, app.config, app.reload,
		config.WithLogger(app.logger),
	)
	if err != nil {
		app.logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		app.logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}

	return watcher
}

// shutdown stops the watcher and server, then releases the remaining
// components within the configured shutdown timeout.
func shutdown(app *application, watcher *config.Watcher) {
	// The watcher goroutine may replace app.config until it has stopped.
	if watcher != nil {
		_ = watcher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		app.config.Server.GetEffectiveShutdownTimeout())
	defer cancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	app.close(shutdownCtx)
	app.logger.Info("accessd stopped")
}
