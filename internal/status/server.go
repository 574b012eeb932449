// Package status exposes a small HTTP surface for a running session:
// liveness, a live session snapshot, and Prometheus metrics.
package status

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/draftworks/docforge/internal/engine"
	"github.com/draftworks/docforge/internal/metrics"
)

// Server is the status Fiber application.
type Server struct {
	app    *fiber.App
	engine *engine.Engine
	addr   string
	logger zerolog.Logger
}

// NewServer creates and configures the status server.
func NewServer(addr string, eng *engine.Engine, m *metrics.Metrics, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:    app,
		engine: eng,
		addr:   addr,
		logger: logger.With().Str("component", "status_server").Logger(),
	}

	app.Use(recover.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(s.engine.Status())
	})
	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	return s
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("status server starting")
	return s.app.Listen(s.addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("status server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}
