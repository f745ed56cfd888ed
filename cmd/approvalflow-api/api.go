// Package main provides the Approvalflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/bizbooks/approvalflow/pkg/directory"
	"github.com/bizbooks/approvalflow/pkg/eventbus"
	"github.com/bizbooks/approvalflow/pkg/persistence"
	"github.com/bizbooks/approvalflow/pkg/registry"
	"github.com/bizbooks/approvalflow/pkg/resolver"
	"github.com/bizbooks/approvalflow/pkg/services"
	"github.com/bizbooks/approvalflow/pkg/web"
	"github.com/bizbooks/approvalflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	directory   directory.Directory
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	directory directory.Directory,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		directory:   directory,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	templateStore := services.NewTemplateStore(a.persistence)
	stepResolver := resolver.NewResolver(a.logger, a.directory)
	engine := workflow.NewEngine(a.logger, a.persistence, a.registry, stepResolver, a.directory, a.eventBus)

	handlers := web.NewAPIHandlers(templateStore, engine, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Approvalflow API")
	})

	companies := app.Group("/companies/:companyId")
	companies.Get("/templates", handlers.ListTemplates)
	companies.Post("/templates", handlers.CreateTemplate)

	templates := app.Group("/templates")
	templates.Get("/:id", handlers.GetTemplate)
	templates.Patch("/:id", handlers.UpdateTemplate)
	templates.Delete("/:id", handlers.DeleteTemplate)
	templates.Post("/:id/default", handlers.SetDefaultTemplate)
	templates.Post("/:id/steps", handlers.AddStep)
	templates.Put("/:id/steps/order", handlers.ReorderSteps)
	templates.Patch("/:id/steps/:stepId", handlers.UpdateStep)
	templates.Delete("/:id/steps/:stepId", handlers.DeleteStep)

	requests := app.Group("/requests")
	requests.Post("/", handlers.StartRequest)
	requests.Get("/:id", handlers.GetRequest)
	requests.Post("/:id/approve", handlers.ApproveRequest)
	requests.Post("/:id/reject", handlers.RejectRequest)
	requests.Post("/:id/cancel", handlers.CancelRequest)

	app.Get("/approvals/pending/:personId", handlers.GetPendingApprovals)
	app.Get("/activities/:activityType/:activityId/status", handlers.GetActivityStatus)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
