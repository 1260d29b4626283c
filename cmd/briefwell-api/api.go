// Package main provides the briefwell API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/briefwell/briefwell/pkg/persistence"
	"github.com/briefwell/briefwell/pkg/services"
	"github.com/briefwell/briefwell/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	commands    services.CommandEnqueuer
}

func NewAPI(logger *slog.Logger, persistence persistence.Persistence, commands services.CommandEnqueuer) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		commands:    commands,
	}
}

func (a *API) App() *fiber.App {
	reportService := services.NewReport(a.persistence, a.commands, a.logger)

	handlers := web.NewAPIHandlers(reportService)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Briefwell API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
