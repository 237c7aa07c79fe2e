// Package v1 provides the HTTP handlers for the task API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"agentloop/internal/orchestrator"
	store "agentloop/internal/repository"
)

// Handler handles HTTP requests.
type Handler struct {
	orc   *orchestrator.Orchestrator
	store store.SessionStore
}

// NewHandler creates a new handler.
func NewHandler(orc *orchestrator.Orchestrator, st store.SessionStore) *Handler {
	return &Handler{
		orc:   orc,
		store: st,
	}
}

// RegisterRoutes registers the task API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/tasks", h.StartTask)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.POST("/v1/sessions/:session_id/decide", h.SubmitDecision)
	e.POST("/v1/sessions/:session_id/cancel", h.CancelSession)
	e.GET("/v1/store/stats", h.StoreStats)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
