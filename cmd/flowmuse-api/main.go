package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmuse/flowmuse/pkg/cmd"
	"github.com/flowmuse/flowmuse/pkg/log"
	"github.com/flowmuse/flowmuse/pkg/otelhelper"
	"github.com/flowmuse/flowmuse/pkg/services"
	"github.com/flowmuse/flowmuse/pkg/settings"
	"github.com/flowmuse/flowmuse/pkg/tracker"
)

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "flowmuse-api",
		Usage:                 "AI synchronization service for the flow editor",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "settings",
				Aliases: []string{"s"},
				Usage:   "Path to the YAML settings file",
				Sources: cli.EnvVars("FLOWMUSE_SETTINGS"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on (overrides settings)",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error; overrides settings)",
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export spans to the OTLP endpoint from the environment",
				Sources: cli.EnvVars("FLOWMUSE_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			settings.LoadDotenv(logger)

			s, err := settings.Load(command.String("settings"))
			if err != nil {
				return err
			}

			if port := command.Int("port"); port != 0 {
				s.Port = port
			}

			if level := command.String("log-level"); level != "" {
				s.LogLevel = level
			}

			log.Setup(s.LogLevel)

			if err := s.Validate(); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Initializing Flowmuse API", "provider", s.Provider, "event_bus", s.EventBus)

			var tracer trace.Tracer

			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "flowmuse-api")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}
			}

			eventBus := cmd.NewEventBus(s.EventBus, tracer, logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			registerAuditLog(eventBus, log.WithModule("audit"))

			if err := eventBus.Subscribe(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to sync events: %w", err)
			}

			store, snapshot := cmd.NewGraphStore(ctx, s.SnapshotPath, logger)
			syncTracker := tracker.NewTracker(logger)

			catalogService := cmd.NewCatalog(ctx, s, logger)
			defer func() {
				if err := catalogService.Stop(); err != nil {
					logger.ErrorContext(ctx, "Failed to stop catalog service", "error", err)
				}
			}()

			notifier := services.NewSyncNotifier(syncTracker, eventBus, logger)
			registry := cmd.NewConnectorRegistry(s, notifier, logger)

			api := NewAPI(
				logger,
				s.Provider,
				registry,
				store,
				snapshot,
				syncTracker,
				catalogService,
				eventBus,
				tracer,
			)

			if err := api.Start(s.Port); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
