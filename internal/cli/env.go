package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/kce/internal/ctxlog"
	"github.com/roach88/kce/internal/store"
)

// Environment variables providing flag defaults. A .env file in the
// working directory is loaded by main before flags are parsed.
const (
	EnvScriptsDir = "KCE_SCRIPTS_DIR"
	EnvLedger     = "KCE_LEDGER"
)

// DefaultScriptsDir holds one directory of configs and params per graph.
const DefaultScriptsDir = "scripts"

func envDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// commandContext returns the command's context carrying a logger on
// stderr, cancelled on SIGINT or SIGTERM. The returned stop function
// releases the signal handler.
func commandContext(opts *RootOptions, cmd *cobra.Command) (context.Context, context.CancelFunc) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(parentCtx, logger))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// openLedger opens the ledger at path, or returns nil when path is empty.
func openLedger(path string) (*store.Store, error) {
	if path == "" {
		return nil, nil
	}
	return store.Open(path)
}
