// Command mockserver is a JSON-RPC tool server for exercising MCP-style
// clients. It reads one request per line on stdin and answers one response per
// line on stdout; diagnostics go to stderr.
//
// Environment:
//
//	MOCKSERVER_LOG_LEVEL     debug, info (default), warn or error
//	MOCKSERVER_LOG_FORMAT    text (default) or json
//	MOCKSERVER_WEATHER_SEED  non-zero seed for a deterministic weather tool
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/mcp-mock-server/internal/config"
	"github.com/ggoodman/mcp-mock-server/stdio"
	"github.com/ggoodman/mcp-mock-server/tools/builtin"
	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mockserver:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := cfg.Logger(os.Stderr).With(slog.String("server_id", uuid.NewString()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := builtin.NewRegistry(builtin.Options{Rand: cfg.Rand()})
	log.InfoContext(ctx, "mockserver.start", slog.Any("tools", reg.Names()))

	h := stdio.NewHandler(reg, stdio.WithLogger(log))
	if err := h.Serve(ctx); err != nil {
		return err
	}

	log.InfoContext(ctx, "mockserver.terminated")
	return nil
}
