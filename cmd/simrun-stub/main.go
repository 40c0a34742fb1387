// Package main provides a development stub of the remote simulation service.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/quantora/simrun/pkg/log"
)

const defaultPort = 9090

func main() {
	cmd := &cli.Command{
		Name:                  "simrun-stub",
		Usage:                 "Serve a fake simulation backend for local development",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to serve on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.DurationFlag{
				Name:    "run-duration",
				Usage:   "How long a fake run takes to finish",
				Value:   defaultRunDuration,
				Sources: cli.EnvVars("SIMRUN_STUB_RUN_DURATION"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("simrun-stub")

			stub := NewStub(logger, command.Duration("run-duration"))

			addr := fmt.Sprintf(":%d", command.Int("port"))
			logger.InfoContext(ctx, "Stub backend listening", "addr", addr)

			return stub.App().Listen(addr)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
