package main

import (
	"context"
	"errors"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/quantora/simrun/pkg/events"
	"github.com/quantora/simrun/pkg/run"
	"github.com/quantora/simrun/pkg/schedule"
)

func simulateFlags() []cli.Flag {
	return append(apiFlags(),
		&cli.StringFlag{
			Name:     "symbol",
			Aliases:  []string{"s"},
			Usage:    "Subject symbol, e.g. NVDA",
			Required: true,
		},
		&cli.IntFlag{
			Name:    "horizon",
			Usage:   "Simulation horizon in days",
			Value:   30,
			Sources: cli.EnvVars("SIMRUN_HORIZON"),
		},
		&cli.IntFlag{
			Name:    "paths",
			Usage:   "Number of simulated paths (clamped to 100..10000)",
			Value:   2000,
			Sources: cli.EnvVars("SIMRUN_PATHS"),
		},
		&cli.StringFlag{
			Name:    "mode",
			Usage:   "Run mode (quick, deep)",
			Value:   string(run.ModeQuick),
			Sources: cli.EnvVars("SIMRUN_MODE"),
		},
		&cli.BoolFlag{
			Name:  "news",
			Usage: "Include news features",
		},
		&cli.BoolFlag{
			Name:  "options",
			Usage: "Include options features",
		},
		&cli.BoolFlag{
			Name:  "futures",
			Usage: "Include futures features",
		},
		&cli.StringSliceFlag{
			Name:  "handle",
			Usage: "Free-text handle, repeatable",
		},
	)
}

func paramsFromFlags(command *cli.Command) run.Params {
	return run.Params{
		Symbol:         command.String("symbol"),
		Horizon:        command.Int("horizon"),
		Paths:          command.Int("paths"),
		Mode:           run.Mode(command.String("mode")),
		IncludeNews:    command.Bool("news"),
		IncludeOptions: command.Bool("options"),
		IncludeFutures: command.Bool("futures"),
		Handles:        command.StringSlice("handle"),
	}
}

func NewSimulateCommand() *cli.Command {
	return &cli.Command{
		Name:    "simulate",
		Aliases: []string{"sim"},
		Usage:   "Run one simulation end to end",
		Flags:   simulateFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := buildApp(ctx, command)
			if err != nil {
				return err
			}
			defer a.close()

			r := a.orchestrator.RunSimulation(ctx, paramsFromFlags(command))
			a.emitter.Flush()

			if r == nil || r.Status != run.StatusFinalized {
				return errors.New("run did not finalize; see log above")
			}

			return nil
		},
	}
}

func NewTrainCommand() *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "Warm the model for a symbol",
		Flags: append(apiFlags(),
			&cli.StringFlag{
				Name:     "symbol",
				Aliases:  []string{"s"},
				Usage:    "Subject symbol",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "lookback",
				Usage: "Training lookback window in days",
				Value: 365,
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := buildApp(ctx, command)
			if err != nil {
				return err
			}
			defer a.close()

			ok := a.executor.Train(ctx, command.String("symbol"), command.Int("lookback"))
			a.emitter.Flush()

			if !ok {
				return errors.New("training failed; see log above")
			}

			return nil
		},
	}
}

func NewPredictCommand() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Request the one-shot next-step probability",
		Flags: append(apiFlags(),
			&cli.StringFlag{
				Name:     "symbol",
				Aliases:  []string{"s"},
				Usage:    "Subject symbol",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "horizon",
				Usage: "Prediction horizon in days (1..365)",
				Value: 30,
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := buildApp(ctx, command)
			if err != nil {
				return err
			}
			defer a.close()

			ok := a.executor.Predict(ctx, command.String("symbol"), command.Int("horizon"))
			a.emitter.Flush()

			if !ok {
				return errors.New("prediction failed; see log above")
			}

			return nil
		},
	}
}

func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent finished runs",
		Flags: apiFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := buildApp(ctx, command)
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.history.List(ctx)
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Println("No finished runs yet")

				return nil
			}

			for _, entry := range entries {
				fmt.Printf("%s  %-6s  %4dd  %5d paths  P(up) %.2f  terminal %.2f  (%s)\n",
					entry.FinishedAt.Format("2006-01-02 15:04"),
					entry.Symbol, entry.Horizon, entry.Paths,
					entry.ProbabilityUp, entry.Terminal, entry.RunID)
			}

			return nil
		},
	}
}

func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Re-run the simulation on a cron schedule",
		Flags: append(simulateFlags(),
			&cli.StringFlag{
				Name:     "cron",
				Usage:    "Cron expression, e.g. '0 * * * *'",
				Required: true,
				Sources:  cli.EnvVars("SIMRUN_WATCH_CRON"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := buildApp(ctx, command)
			if err != nil {
				return err
			}
			defer a.close()

			watcher, err := schedule.NewWatcher(command.String("cron"), a.logger)
			if err != nil {
				return err
			}

			// With a bus configured, watch also consumes its own run
			// outcomes so long-lived sessions log a durable trail of
			// every scheduled run.
			if a.bus != nil {
				if err := followRunEvents(ctx, a); err != nil {
					return err
				}
			}

			params := paramsFromFlags(command)

			if err := watcher.Start(ctx, func(tickCtx context.Context) {
				a.orchestrator.RunSimulation(tickCtx, params)
			}); err != nil {
				return err
			}

			<-ctx.Done()
			watcher.Stop()
			a.orchestrator.Abort()

			return nil
		},
	}
}

// followRunEvents subscribes to the run bus and logs terminal outcomes.
func followRunEvents(ctx context.Context, a *app) error {
	a.bus.Handle(events.RunFinishedEvent, func(ctx context.Context, event any) error {
		if ev, ok := event.(*events.RunFinished); ok {
			a.logger.InfoContext(ctx, "Run finished",
				"run_id", ev.RunID, "symbol", ev.Symbol,
				"p_up", ev.Summary.ProbabilityUp, "terminal", ev.Summary.Terminal,
				"duration", ev.Duration)
		}

		return nil
	})

	a.bus.Handle(events.RunFailedEvent, func(ctx context.Context, event any) error {
		if ev, ok := event.(*events.RunFailed); ok {
			a.logger.WarnContext(ctx, "Run failed",
				"run_id", ev.RunID, "symbol", ev.Symbol,
				"phase", ev.Phase, "error", ev.Error)
		}

		return nil
	})

	a.bus.Handle(events.RunAbortedEvent, func(ctx context.Context, event any) error {
		if ev, ok := event.(*events.RunAborted); ok {
			a.logger.InfoContext(ctx, "Run aborted", "run_id", ev.RunID, "symbol", ev.Symbol)
		}

		return nil
	})

	return a.bus.Subscribe(ctx)
}
