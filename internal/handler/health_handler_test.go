package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type stubHealthChecker struct {
	err error
}

func (s *stubHealthChecker) Ping(ctx context.Context) error { return s.err }

type stubModelChecker struct {
	enabled     bool
	circuitOpen bool
}

func (s *stubModelChecker) Enabled() bool       { return s.enabled }
func (s *stubModelChecker) IsCircuitOpen() bool { return s.circuitOpen }

type stubReadiness struct {
	ready bool
}

func (s *stubReadiness) IsReady() bool { return s.ready }

func newHealthHandler(db HealthChecker, model ModelHealthChecker, ready ReadinessChecker) *HealthHandler {
	return NewHealthHandler(HealthHandlerConfig{
		HealthChecker: db,
		ModelChecker:  model,
		Readiness:     ready,
		Logger:        zap.NewNop(),
	})
}

func decodeHealth(t *testing.T, rr *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	h := newHealthHandler(&stubHealthChecker{}, &stubModelChecker{enabled: true}, nil)

	rr := httptest.NewRecorder()
	h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeHealth(t, rr)
	if resp.Status != "ok" {
		t.Errorf("status field = %q, want ok", resp.Status)
	}
	if resp.Checks["database"].Status != "healthy" {
		t.Errorf("database check = %q, want healthy", resp.Checks["database"].Status)
	}
	if resp.Checks["model"].Status != "healthy" {
		t.Errorf("model check = %q, want healthy", resp.Checks["model"].Status)
	}
}

func TestHandleHealth_DatabaseDown(t *testing.T) {
	h := newHealthHandler(&stubHealthChecker{err: errors.New("connection refused")}, nil, nil)

	rr := httptest.NewRecorder()
	h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	resp := decodeHealth(t, rr)
	if resp.Status != "unhealthy" {
		t.Errorf("status field = %q, want unhealthy", resp.Status)
	}
}

func TestHandleHealth_ModelCircuitOpenIsDegraded(t *testing.T) {
	h := newHealthHandler(&stubHealthChecker{}, &stubModelChecker{enabled: true, circuitOpen: true}, nil)

	rr := httptest.NewRecorder()
	h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Heuristic advice still works, so an open circuit degrades rather
	// than fails the check.
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeHealth(t, rr)
	if resp.Status != "degraded" {
		t.Errorf("status field = %q, want degraded", resp.Status)
	}
}

func TestHandleHealth_ModelDisabled(t *testing.T) {
	h := newHealthHandler(nil, &stubModelChecker{enabled: false}, nil)

	rr := httptest.NewRecorder()
	h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeHealth(t, rr)
	if resp.Checks["model"].Status != "disabled" {
		t.Errorf("model check = %q, want disabled", resp.Checks["model"].Status)
	}
}

func TestHandleReadiness_Ready(t *testing.T) {
	h := newHealthHandler(&stubHealthChecker{}, nil, &stubReadiness{ready: true})

	rr := httptest.NewRecorder()
	h.HandleReadiness(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestHandleReadiness_Draining(t *testing.T) {
	h := newHealthHandler(&stubHealthChecker{}, nil, &stubReadiness{ready: false})

	rr := httptest.NewRecorder()
	h.HandleReadiness(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "draining" {
		t.Errorf("status field = %q, want draining", body["status"])
	}
}

func TestHandleReadiness_DatabaseNotReady(t *testing.T) {
	h := newHealthHandler(&stubHealthChecker{err: errors.New("timeout")}, nil, &stubReadiness{ready: true})

	rr := httptest.NewRecorder()
	h.HandleReadiness(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleLiveness(t *testing.T) {
	h := newHealthHandler(nil, nil, nil)

	rr := httptest.NewRecorder()
	h.HandleLiveness(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}
