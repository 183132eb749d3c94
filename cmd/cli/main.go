package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dverbin/mediavault/internal/cli"
	"github.com/dverbin/mediavault/internal/config"
	"github.com/dverbin/mediavault/internal/flagx"
	"github.com/dverbin/mediavault/internal/logging"
)

// configFlags lists every value-taking flag, so the subcommand and its
// arguments can be separated from the configuration flags.
var configFlags = []string{"-w", "-m", "-g", "-l", "-d", "-k", "-e", "-i", "-c", "-config"}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	args := flagx.Positional(os.Args[1:], configFlags)
	if err := app.Run(ctx, args); err != nil {
		log.Error(ctx, "command failed", "error", err)
		os.Exit(1)
	}
}
