package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quote-sentinel/internal/alerting"
	"quote-sentinel/internal/circuitbreaker"
	"quote-sentinel/internal/core/memory"
	"quote-sentinel/internal/core/updater"
	"quote-sentinel/internal/recovery"
	"quote-sentinel/internal/service"
	"quote-sentinel/internal/tracker"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router   *gin.Engine
	store    *memory.Store
	breakers *circuitbreaker.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	rows := updater.New(store, 3)
	logger := zap.NewNop()

	breakers := circuitbreaker.NewManager(logger, circuitbreaker.Config{
		FailureThreshold:  2,
		CoolDown:          time.Minute,
		HalfOpenSuccesses: 1,
	})
	alerts := alerting.NewDispatcher(alerting.Options{
		Rows: rows, Repo: store, Alerts: store, Trends: store,
		Clock: clock, Policy: alerting.DefaultPolicy(), Logger: logger,
	})
	coord := recovery.NewCoordinator(rows, recovery.InitRegistry(recovery.Dependencies{
		Clock: clock, Breakers: breakers, Logger: logger,
	}), logger)
	t.Cleanup(coord.Shutdown)

	tr := tracker.New(tracker.Options{
		Repo: store, Rows: rows, Recovery: coord, Alerts: alerts, Clock: clock, Logger: logger,
	})
	health := service.NewHealthService(store, store, breakers, clock, alerts.Policy().FailureRateMax)

	router := NewRouter(
		NewWorkflowHandler(tr, alerts, coord),
		NewOpsHandler(alerts, health, breakers, 24*time.Hour),
		logger,
	)
	return &testServer{router: router, store: store, breakers: breakers}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) start(t *testing.T, id string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/workflows", gin.H{
		"workflow_id":      id,
		"workflow_type":    "quote_automation",
		"quote_request_id": "qr-" + id,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestStartWorkflow(t *testing.T) {
	s := newTestServer(t)
	s.start(t, "wf-1")

	w := s.do(t, http.MethodPost, "/api/v1/workflows", gin.H{
		"workflow_id": "wf-1", "workflow_type": "quote_automation",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, true, decode(t, w)["duplicate"])

	w = s.do(t, http.MethodPost, "/api/v1/workflows", gin.H{
		"workflow_id": "wf-2", "workflow_type": "carrier_pigeon",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/workflows", gin.H{"workflow_type": "approval"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetWorkflow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.start(t, "wf-1")
	w = s.do(t, http.MethodGet, "/api/v1/workflows/wf-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "wf-1", body["workflow_id"])
	assert.Equal(t, "initializing", body["status"])
	assert.Equal(t, "qr-wf-1", body["quote_request_id"])
}

func TestUpdateStep(t *testing.T) {
	s := newTestServer(t)
	s.start(t, "wf-1")

	w := s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/steps", gin.H{
		"step_name": "detection", "status": "in_progress",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "detecting", decode(t, w)["workflow_status"])

	w = s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/steps", gin.H{
		"step_name": "supplier_contact", "status": "in_progress",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/steps", gin.H{
		"step_name": "detection", "status": "done",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/steps", gin.H{
		"step_name": "detection", "status": "completed",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["duration_seconds"])

	w = s.do(t, http.MethodPost, "/api/v1/workflows/missing/steps", gin.H{
		"step_name": "detection", "status": "in_progress",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompleteWorkflow_RejectsLaterSteps(t *testing.T) {
	s := newTestServer(t)
	s.start(t, "wf-1")

	w := s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/complete", gin.H{"status": "stuck"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/complete", gin.H{
		"status": "completed", "metadata": gin.H{"quote_id": "q-9"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["applied"])

	w = s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/steps", gin.H{
		"step_name": "send", "status": "in_progress",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateSuppliersAndDecision(t *testing.T) {
	s := newTestServer(t)
	s.start(t, "wf-1")

	w := s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/suppliers", gin.H{
		"suppliers_contacted": 2, "suppliers_responded": 5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/suppliers", gin.H{
		"suppliers_contacted": 5, "suppliers_responded": 2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["alert_raised"])

	w = s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/customer-decision", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/customer-decision", gin.H{"accepted": false})
	require.Equal(t, http.StatusOK, w.Code)

	e, err := s.store.GetByID(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 5, e.SuppliersContacted)
	require.NotNil(t, e.CustomerAccepted)
	assert.False(t, *e.CustomerAccepted)
}

func TestResolveAlertAndCancelRecovery(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/workflows/missing/alerts/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.start(t, "wf-1")
	w = s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/alerts/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode(t, w)["alert_resolved_at"])

	w = s.do(t, http.MethodPost, "/api/v1/workflows/wf-1/recovery/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["cancelled"])
}

func TestSweeps(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/sweeps/stuck", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stuck", decode(t, w)["sweep"])

	w = s.do(t, http.MethodPost, "/api/v1/sweeps/all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var results []alerting.SweepResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	assert.Len(t, results, len(alerting.SweepNames))

	w = s.do(t, http.MethodPost, "/api/v1/sweeps/disk-space", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthSummary(t *testing.T) {
	s := newTestServer(t)
	s.start(t, "wf-1")

	w := s.do(t, http.MethodGet, "/api/v1/health/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, service.StatusHealthy, body["status"])
	assert.Equal(t, float64(24), body["window_hours"])

	w = s.do(t, http.MethodGet, "/api/v1/health/summary?window=1h", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["window_hours"])

	w = s.do(t, http.MethodGet, "/api/v1/health/summary?window=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCircuitBreakers(t *testing.T) {
	s := newTestServer(t)
	s.breakers.Configure(circuitbreaker.ServicePDF, circuitbreaker.PDFServiceConfig())

	boom := func(context.Context) (any, error) { return nil, errors.New("renderer crashed") }
	for i := 0; i < 2; i++ {
		_, _ = s.breakers.Execute(context.Background(), circuitbreaker.ServiceGmail, boom)
	}
	require.Equal(t, circuitbreaker.StateOpen, s.breakers.State(circuitbreaker.ServiceGmail))

	w := s.do(t, http.MethodGet, "/api/v1/circuit-breakers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snaps []circuitbreaker.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
	require.Len(t, snaps, 2)
	assert.Equal(t, circuitbreaker.StateOpen, snaps[0].State)

	w = s.do(t, http.MethodGet, "/api/v1/health/summary", nil)
	assert.Equal(t, service.StatusUnhealthy, decode(t, w)["status"])

	w = s.do(t, http.MethodPost, "/api/v1/circuit-breakers/fax-service/reset", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/circuit-breakers/gmail-service/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, circuitbreaker.StateClosed, s.breakers.State(circuitbreaker.ServiceGmail))

	w = s.do(t, http.MethodPost, "/api/v1/circuit-breakers/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"gmail-service", "pdf-service"}, decode(t, w)["reset"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
