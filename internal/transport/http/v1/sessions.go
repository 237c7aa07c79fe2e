package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"agentloop/internal/domain"
)

// StartTask submits a new task and returns its session id.
// POST /v1/tasks
func (h *Handler) StartTask(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.StartTaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "prompt is required"})
	}

	sessionID, err := h.orc.Start(ctx, req.Prompt)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, domain.StartTaskResponse{SessionID: sessionID})
}

// ListSessions lists all non-terminal sessions.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	ids, err := h.store.ListActive(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": ids,
	})
}

// GetSession returns the full session state.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	state, err := h.orc.GetState(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, state)
}

// SubmitDecision records an approval decision for the session's pending
// tool call.
// POST /v1/sessions/:session_id/decide
func (h *Handler) SubmitDecision(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var req domain.DecideRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.CallID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "call_id is required"})
	}
	if !req.Decision.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "decision must be approve or reject"})
	}

	err := h.orc.Decide(ctx, sessionID, req.CallID, req.Decision, req.Responder)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, domain.ErrStaleDecision), errors.Is(err, domain.ErrSessionTerminal):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// CancelSession requests cooperative cancellation of a running session.
// POST /v1/sessions/:session_id/cancel
func (h *Handler) CancelSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	err := h.orc.Cancel(ctx, sessionID)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, domain.ErrSessionTerminal):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// StoreStats reports durable store totals.
// GET /v1/store/stats
func (h *Handler) StoreStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.store.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, stats)
}
