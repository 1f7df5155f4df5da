// Package http exposes the operational API of the rollup service: health,
// manual sync triggers, and sync-log inspection. The product dashboard
// lives in another service; nothing here serves end users.
package http

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"tidemark/internal/rollups"
	"tidemark/internal/syncer"
)

const defaultLogsLimit = 50

// Server is the operational HTTP surface over the syncer.
type Server struct {
	app       *fiber.App
	dbManager cartridge.DBManager
	syncer    *syncer.Syncer
	logger    *slog.Logger
}

// NewServer builds the fiber app with all routes mounted.
func NewServer(dbManager cartridge.DBManager, s *syncer.Syncer, logger *slog.Logger) *Server {
	srv := &Server{
		app:       fiber.New(fiber.Config{DisableStartupMessage: true}),
		dbManager: dbManager,
		syncer:    s,
		logger:    logger,
	}
	srv.mountRoutes()
	return srv
}

// App returns the underlying fiber app, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the given port until shutdown.
func (s *Server) Listen(port string) error {
	return s.app.Listen(":" + port)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) mountRoutes() {
	s.app.Get("/health", s.healthHandler)

	api := s.app.Group("/api/v1")
	api.Post("/sync/all", s.syncAllHandler)
	api.Post("/sync/:projectID", s.syncProjectHandler)
	api.Get("/sync-logs", s.syncLogsHandler)
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// parseDateQuery reads the optional ?date=YYYY-MM-DD query parameter,
// defaulting to yesterday: rollup runs target closed days.
func parseDateQuery(c *fiber.Ctx) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		return rollups.Day(time.Now().UTC().AddDate(0, 0, -1)), nil
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return rollups.Day(date), nil
}

func (s *Server) syncProjectHandler(c *fiber.Ctx) error {
	projectID, err := strconv.ParseUint(c.Params("projectID"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}

	date, err := parseDateQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := s.syncer.SyncProjectData(c.Context(), uint(projectID), date); err != nil {
		s.logger.Error("Manual project sync failed",
			slog.Uint64("project_id", projectID),
			slog.Time("date", date),
			slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "sync failed",
		})
	}

	return c.JSON(fiber.Map{
		"status":     "synced",
		"project_id": projectID,
		"date":       date.Format("2006-01-02"),
	})
}

func (s *Server) syncAllHandler(c *fiber.Ctx) error {
	date, err := parseDateQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := s.syncer.SyncAllProjects(c.Context(), date); err != nil {
		s.logger.Error("Manual sweep failed", slog.Time("date", date), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "sweep failed",
		})
	}

	return c.JSON(fiber.Map{
		"status": "synced",
		"date":   date.Format("2006-01-02"),
	})
}

func (s *Server) syncLogsHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultLogsLimit)
	if limit <= 0 || limit > 500 {
		limit = defaultLogsLimit
	}

	logs, err := syncer.ListRecentLogs(s.dbManager.GetConnection(), limit)
	if err != nil {
		s.logger.Error("Failed to list sync logs", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list sync logs",
		})
	}

	return c.JSON(fiber.Map{"sync_logs": logs})
}
