// Package server implements the command running the HTTP API, the
// deployment orchestrator, and the drift detector in a single process.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-cd/meridian/app"
	"github.com/meridian-cd/meridian/web"
	"github.com/spf13/cobra"
)

// NewCmdServer creates the command to run the Meridian server
func NewCmdServer() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run Meridian server (HTTP API + orchestrator + drift detector)",
		Long:  "Starts the HTTP API, the deployment orchestrator, and the drift detector in a single process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	config := app.GetConfig()
	orchestrator := app.GetOrchestrator()
	detector := app.GetDriftDetector()
	dispatcher := app.GetDispatcher()

	slog.Info("Starting Meridian server")

	// Deployments stranded mid-flight by the previous process are failed
	// and their locks released before new work is accepted
	if err := orchestrator.RecoverInterrupted(); err != nil {
		return fmt.Errorf("failed to recover interrupted deployments: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel)

	// Drift detector runs in the background for the life of the process
	go func() {
		if err := detector.Start(ctx); err != nil {
			slog.Error("Drift detector failed", "error", err)
			cancel()
		}
	}()

	handlers := web.NewHandlers(orchestrator, detector)
	httpServer := web.NewServer(handlers, config.HTTPHost, config.HTTPPort)

	// Blocks until shutdown
	err := httpServer.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if shutdownErr := orchestrator.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Error("Orchestrator shutdown incomplete", "error", shutdownErr)
	}
	dispatcher.Close()

	return err
}

func handleShutdown(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Received shutdown signal", "signal", sig)
	cancel()
}
