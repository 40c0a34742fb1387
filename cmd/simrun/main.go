package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:                  "simrun",
		EnableShellCompletion: true,
		Usage:                 "Drive simulation runs against a remote simulation service",
		Commands: []*cli.Command{
			NewSimulateCommand(),
			NewTrainCommand(),
			NewPredictCommand(),
			NewHistoryCommand(),
			NewWatchCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
