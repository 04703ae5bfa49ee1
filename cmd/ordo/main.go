// Command ordo runs the ordered parallel pipeline workloads.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := newApp()
	err := a.rootCmd().ExecuteContext(ctx)

	cancelCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if shutdownErr := a.shutdown(shutdownCtx); shutdownErr != nil {
		slog.Error("failed to shutdown telemetry", "error", shutdownErr)
	}

	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}
