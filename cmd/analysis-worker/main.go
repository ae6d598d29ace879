package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pixelvault/vault/cmd/analysis-worker/worker"
	"github.com/pixelvault/vault/cmd/vault/container"
	"github.com/pixelvault/vault/common/bootstrap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bootstrap service components
	components, err := bootstrap.Setup(ctx, "analysis-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// The worker retries the vision gateway before falling back; the
	// request path keeps a single attempt to stay responsive.
	if components.Config.Analysis.MaxAttempts <= 1 {
		components.Config.Analysis.MaxAttempts = 3
	}

	components.Logger.Info("analysis-worker starting")

	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		components.Logger.Error("failed to initialize service container", "error", err)
		os.Exit(1)
	}

	analysisWorker := worker.NewAnalysisWorker(
		components.Redis,
		serviceContainer.UploadService,
		components.Logger,
	)

	// Start worker in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := analysisWorker.Start(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("analysis worker error: %w", err)
		}
	}()

	components.Logger.Info("analysis-worker started successfully")

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		components.Logger.Error("worker failed", "error", err)
		os.Exit(1)
	case sig := <-sigChan:
		components.Logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}

	components.Logger.Info("analysis-worker shutting down gracefully")
}
