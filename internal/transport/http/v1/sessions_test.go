package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentloop/internal/adapter/llm"
	"agentloop/internal/domain"
	"agentloop/internal/gate"
	"agentloop/internal/orchestrator"
	"agentloop/internal/reasoning"
	store "agentloop/internal/repository"
	"agentloop/internal/tools"
	"agentloop/policy"
)

func newTestHandler(t *testing.T) (*Handler, store.SessionStore) {
	t.Helper()

	db, err := store.NewSQLiteStore(":memory:", time.Hour, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	backend := llm.NewBackend(llm.NewMockClient(), "mock-model", nil)
	registry := tools.NewRegistry()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	cfg := orchestrator.Config{
		ConfidenceThreshold: 0.8,
		MaxIterations:       3,
		ApprovalTimeout:     time.Second,
	}
	reasoner := reasoning.New(backend, cfg.ConfidenceThreshold, cfg.MaxIterations, nil)
	orc := orchestrator.New(db, gate.New(nil), backend, registry, nil, engine, reasoner, cfg, nil)
	return NewHandler(orc, db), db
}

func TestStartTaskAccepted(t *testing.T) {
	e := echo.New()
	h, db := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", bytes.NewBufferString(`{"prompt":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.StartTask(c))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp domain.StartTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)

	state, err := db.Load(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "hello", state.Messages[0].Content)
}

func TestStartTaskValidation(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.StartTask(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess_missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("sess_missing")

	require.NoError(t, h.GetSession(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSessionReturnsState(t *testing.T) {
	e := echo.New()
	h, db := newTestHandler(t)

	state := domain.NewSessionState("sess_get1", "inspect me")
	require.NoError(t, db.Save(context.Background(), state))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess_get1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("sess_get1")

	require.NoError(t, h.GetSession(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.SessionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "sess_get1", got.SessionID)
	assert.Equal(t, domain.StatusRunning, got.Status)
}

func TestSubmitDecisionStale(t *testing.T) {
	e := echo.New()
	h, db := newTestHandler(t)

	// Running session with nothing pending; any decision is stale.
	state := domain.NewSessionState("sess_dec1", "no approvals here")
	require.NoError(t, db.Save(context.Background(), state))

	body := `{"call_id":"call_x","decision":"approve","responder":"alice"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess_dec1/decide", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("sess_dec1")

	require.NoError(t, h.SubmitDecision(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitDecisionValidation(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	body := `{"call_id":"call_x","decision":"maybe"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess_dec2/decide", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("sess_dec2")

	require.NoError(t, h.SubmitDecision(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelTerminalSessionConflicts(t *testing.T) {
	e := echo.New()
	h, db := newTestHandler(t)

	state := domain.NewSessionState("sess_can1", "done already")
	state.Status = domain.StatusCompleted
	require.NoError(t, db.Save(context.Background(), state))

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess_can1/cancel", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("sess_can1")

	require.NoError(t, h.CancelSession(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStoreStats(t *testing.T) {
	e := echo.New()
	h, db := newTestHandler(t)

	require.NoError(t, db.Save(context.Background(), domain.NewSessionState("sess_st1", "one")))

	req := httptest.NewRequest(http.MethodGet, "/v1/store/stats", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.StoreStats(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.StoreStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.Active)
	assert.Greater(t, stats.Bytes, int64(0))
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
