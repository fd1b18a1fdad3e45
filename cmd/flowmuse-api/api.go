// Package main provides the Flowmuse API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmuse/flowmuse/pkg/catalog"
	"github.com/flowmuse/flowmuse/pkg/connector"
	"github.com/flowmuse/flowmuse/pkg/eventbus"
	"github.com/flowmuse/flowmuse/pkg/graph"
	"github.com/flowmuse/flowmuse/pkg/services"
	"github.com/flowmuse/flowmuse/pkg/tracker"
	"github.com/flowmuse/flowmuse/pkg/web"
)

type API struct {
	logger   *slog.Logger
	provider string
	registry *connector.Registry
	store    *graph.Store
	snapshot *graph.SnapshotFile
	tracker  *tracker.Tracker
	catalog  *catalog.Service
	eventBus eventbus.EventBus
	tracer   trace.Tracer
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	provider string,
	registry *connector.Registry,
	store *graph.Store,
	snapshot *graph.SnapshotFile,
	syncTracker *tracker.Tracker,
	catalogService *catalog.Service,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:   logger,
		provider: provider,
		registry: registry,
		store:    store,
		snapshot: snapshot,
		tracker:  syncTracker,
		catalog:  catalogService,
		eventBus: eventBus,
		tracer:   tracer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	assist := services.NewAssist(
		a.registry,
		a.provider,
		a.store,
		a.tracker,
		a.catalog,
		a.snapshot,
		a.eventBus,
		a.tracer,
		a.logger,
	)

	handlers := web.NewAPIHandlers(assist, a.registry, a.store, a.tracker, a.catalog, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(recoverer.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowmuse API")
	})

	ai := app.Group("/ai")
	ai.Post("/build-flow", handlers.BuildFlow)
	ai.Post("/resync-node", handlers.ResyncNode)
	ai.Post("/generate-description", handlers.GenerateDescription)
	ai.Post("/custom-nodes", handlers.RegisterCustomNodes)
	ai.Get("/providers", handlers.GetProviders)
	ai.Get("/sync-state", handlers.ListSyncStates)
	ai.Get("/sync-state/:nodeId", handlers.GetSyncState)

	app.Get("/flows", handlers.GetFlows)
	app.Get("/flows/:id", handlers.GetFlow)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
