// Package httpapi wires the delta endpoint and health/ready probes onto a
// Fiber app, the same HTTP framework lighthouse-paas's own cmd/api/main.go
// builds its routes on.
package httpapi

import (
	"context"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/mu-semtech/network-monitor/internal/core/delta"
)

// bodyLimit is the minimum body-size limit the delta endpoint must accept,
// per the documented ≥100MB contract.
const bodyLimit = 100 * 1024 * 1024

// Server hosts the delta POST route and the process's health/ready probes.
type Server struct {
	App *fiber.App

	deltaHandler *delta.Handler
	log          *logrus.Entry
	ready        atomic.Bool
	exiting      atomic.Bool
}

// New builds a Server with routes registered but not yet listening.
func New(deltaHandler *delta.Handler, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	s := &Server{App: app, deltaHandler: deltaHandler, log: log}

	app.Post("/.mu/delta", s.handleDelta)
	app.Get("/healthz", s.handleHealthz)
	app.Get("/readyz", s.handleReadyz)

	return s
}

// SetReady flips the /readyz probe once registry and engine readiness have
// both been confirmed at startup.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// SetExiting flips /healthz to unhealthy once shutdown has begun, matching
// the delta handler's own exiting flag.
func (s *Server) SetExiting(exiting bool) {
	s.exiting.Store(exiting)
}

func (s *Server) handleDelta(c *fiber.Ctx) error {
	// HandlePayload enqueues work that keeps running after this handler
	// returns; fasthttp recycles c.Context() once it does, so the engine
	// must be handed a context that outlives the request.
	s.deltaHandler.HandlePayload(context.Background(), c.Body())
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	if s.exiting.Load() {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleReadyz(c *fiber.Ctx) error {
	if !s.ready.Load() {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	return c.SendStatus(fiber.StatusOK)
}
