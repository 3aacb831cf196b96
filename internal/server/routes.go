package server

import (
	"github.com/gofiber/fiber/v2"

	"leadengine/internal/core/extract"
	"leadengine/internal/health"
	"leadengine/internal/platform/redis"
	"leadengine/internal/platform/store"
)

type Dependencies struct {
	Extract *extract.Service
	Redis   *redis.Service
	Store   *store.Store
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := health.NewHealthHandler(d.Redis, d.Store)
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	h := extract.NewHandler(d.Extract)
	api.Post("/jobs", h.HandleCreateJob)
	api.Get("/jobs", h.HandleListJobs)
	api.Get("/jobs/:jobId", h.HandleGetJob)
	api.Delete("/jobs/:jobId", h.HandleDeleteJob)
	api.Post("/jobs/:jobId/cancel", h.HandleCancelJob)
	api.Post("/jobs/:jobId/restart", h.HandleRestartJob)
	api.Get("/jobs/:jobId/results", h.HandleListResults)
	api.Get("/jobs/:jobId/results/export", h.HandleExport)
	api.Get("/categories", h.HandleListCategories)

	return healthHandler
}
