package handler

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"

	"docvault/docs"
	"docvault/internal/database"
	"docvault/internal/service"
	"docvault/internal/storage"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin: parsing and status mapping only.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService) {
	app.Get("/swagger/*", Swagger())

	app.Get("/health", HealthCheck(db, docSvc))
	app.Get("/healthz", Liveness())

	app.Get("/documents", ListDocuments(docSvc))
	app.Post("/documents", UploadDocument(docSvc))
	app.Get("/documents/:id", GetDocument(docSvc))
	app.Get("/documents/:id/download", DownloadDocument(docSvc))
	app.Get("/documents/:id/url", DocumentURL(docSvc))
	app.Delete("/documents/:id", DeleteDocument(docSvc))
}

// HealthCheck godoc
// @Summary Dependency health
// @Description Checks the database and every storage backend.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(db *sql.DB, docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := database.Ping(ctx, db, 2*time.Second); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}

		body := fiber.Map{"status": "healthy", "database": "up"}
		if docSvc == nil {
			return c.Status(fiber.StatusOK).JSON(body)
		}

		report := docSvc.Health(ctx)
		body["backends"] = report.Backends
		if report.Status == storage.HealthHealthy {
			return c.Status(fiber.StatusOK).JSON(body)
		}

		body["status"] = string(storage.HealthDegraded)
		for _, h := range report.Backends {
			if h.Healthy() {
				// Uploads can still land somewhere.
				return c.Status(fiber.StatusOK).JSON(body)
			}
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
}

// Liveness reports that the process is serving requests.
func Liveness() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// Swagger serves the API docs with the host and scheme of the incoming request.
func Swagger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	}
}
