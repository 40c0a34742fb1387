package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	cli "github.com/urfave/cli/v3"

	"github.com/quantora/simrun/pkg/artifact"
	"github.com/quantora/simrun/pkg/channels/gochannel"
	"github.com/quantora/simrun/pkg/channels/kafka"
	"github.com/quantora/simrun/pkg/client"
	"github.com/quantora/simrun/pkg/emitter"
	"github.com/quantora/simrun/pkg/eventbus"
	"github.com/quantora/simrun/pkg/history"
	"github.com/quantora/simrun/pkg/log"
	"github.com/quantora/simrun/pkg/orchestrator"
	"github.com/quantora/simrun/pkg/otelhelper"
	"github.com/quantora/simrun/pkg/phases"
	"github.com/quantora/simrun/pkg/stream"
)

// apiFlags are shared by every command that talks to the remote service.
func apiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "api-base",
			Usage:    "Base URL of the simulation service",
			Required: true,
			Sources:  cli.EnvVars("SIMRUN_API_BASE"),
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "API key sent with every request",
			Sources: cli.EnvVars("SIMRUN_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("SIMRUN_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "history-backend",
			Usage:   "Run history backend (memory, file, redis)",
			Value:   "file",
			Sources: cli.EnvVars("SIMRUN_HISTORY_BACKEND"),
		},
		&cli.StringFlag{
			Name:    "history-dir",
			Usage:   "Directory for the file history backend",
			Value:   defaultHistoryDir(),
			Sources: cli.EnvVars("SIMRUN_HISTORY_DIR"),
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for the redis history backend",
			Value:   "localhost:6379",
			Sources: cli.EnvVars("SIMRUN_REDIS_ADDR"),
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password for the redis history backend",
			Sources: cli.EnvVars("SIMRUN_REDIS_PASSWORD"),
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database for the redis history backend",
			Sources: cli.EnvVars("SIMRUN_REDIS_DB"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Run event bus (none, gochannel, kafka)",
			Value:   "none",
			Sources: cli.EnvVars("SIMRUN_EVENT_BUS"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OTLP traces for run phases",
			Sources: cli.EnvVars("SIMRUN_TRACING"),
		},
	}
}

func defaultHistoryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".simrun"
	}

	return home + "/.simrun"
}

// app bundles the wired collaborators for one CLI invocation.
type app struct {
	logger       *slog.Logger
	emitter      *emitter.Emitter
	client       *client.Client
	executor     *phases.Executor
	orchestrator *orchestrator.Orchestrator
	history      history.Store
	bus          *eventbus.WatermillEventBus

	closers []func()
}

func buildApp(ctx context.Context, command *cli.Command) (*app, error) {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("simrun")

	em := emitter.New(emitter.WithLineListener(func(line string) {
		fmt.Println(line)
	}))

	apiBase := command.String("api-base")
	apiKey := command.String("api-key")

	c := client.New(apiBase, apiKey, client.WithLogger(logger))

	// The stream outlives any sane request timeout, so it gets its own
	// transport without one.
	streamClient := client.New(apiBase, apiKey,
		client.WithLogger(logger),
		client.WithHTTPClient(&http.Client{}),
	)

	store, err := buildHistory(ctx, command, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		logger:   logger,
		emitter:  em,
		client:   c,
		executor: phases.NewExecutor(c, em, logger),
		history:  store,
	}

	a.closers = append(a.closers, em.Close, func() { _ = store.Close() })

	opts := []orchestrator.Option{}

	bus, err := buildEventBus(command, logger)
	if err != nil {
		return nil, err
	}

	if bus != nil {
		a.bus = bus
		opts = append(opts, orchestrator.WithEventBus(bus))
		a.closers = append(a.closers, func() { _ = bus.Close() })
	}

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "simrun")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		opts = append(opts, orchestrator.WithTracer(tracer))
	}

	a.orchestrator = orchestrator.New(
		a.executor,
		stream.NewConsumer(streamClient, em, logger),
		artifact.NewFetcher(c, em, logger),
		em,
		store,
		logger,
		opts...,
	)

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildHistory(ctx context.Context, command *cli.Command, logger *slog.Logger) (history.Store, error) {
	switch backend := command.String("history-backend"); backend {
	case "memory":
		return history.NewMemoryStore(history.DefaultLimit), nil
	case "file":
		return history.NewFileStore(command.String("history-dir"), history.DefaultLimit)
	case "redis":
		return history.NewRedisStore(ctx,
			command.String("redis-addr"),
			command.String("redis-password"),
			command.Int("redis-db"),
			history.DefaultLimit,
			logger,
		)
	default:
		return nil, fmt.Errorf("unsupported history backend: %s", backend)
	}
}

func buildEventBus(command *cli.Command, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	wmLogger := watermill.NopLogger{}

	switch bus := command.String("event-bus"); bus {
	case "none", "":
		return nil, nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, "simrun")
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus: %s", bus)
	}
}
