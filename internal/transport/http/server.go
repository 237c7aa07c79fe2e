// Package http provides the HTTP server for the task API.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"agentloop/internal/orchestrator"
	store "agentloop/internal/repository"
	v1 "agentloop/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server. It exposes task
// submission, session inspection, approval decisions and store stats.
func NewServer(orc *orchestrator.Orchestrator, st store.SessionStore) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	handler := v1.NewHandler(orc, st)
	handler.RegisterRoutes(e)

	return e
}
