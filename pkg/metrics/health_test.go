package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func resetTracker() {
	tracker = &componentTracker{
		start:   time.Now(),
		healthy: make(map[string]bool),
		reason:  make(map[string]string),
	}
}

func TestRegisterComponent(t *testing.T) {
	resetTracker()
	RegisterComponent("storage", true, "running")

	if !tracker.healthy["storage"] {
		t.Error("storage should be registered healthy")
	}
}

func TestIsHealthy_UnregisteredDoesNotFail(t *testing.T) {
	resetTracker()
	RegisterComponent("api", true, "")
	// storage never registered.

	healthy, _ := tracker.isHealthy()
	if !healthy {
		t.Error("an unregistered component should not fail liveness")
	}
}

func TestIsHealthy_RegisteredUnhealthy(t *testing.T) {
	resetTracker()
	RegisterComponent("api", true, "")
	RegisterComponent("storage", false, "not connected")

	healthy, reason := tracker.isHealthy()
	if healthy {
		t.Error("expected unhealthy")
	}
	if reason == "" {
		t.Error("expected a reason")
	}
}

func TestIsReady_AllReady(t *testing.T) {
	resetTracker()
	RegisterComponent("storage", true, "")
	RegisterComponent("api", true, "")

	ready, _ := tracker.isReady()
	if !ready {
		t.Error("expected ready")
	}
}

func TestIsReady_MissingComponent(t *testing.T) {
	resetTracker()
	RegisterComponent("api", true, "")
	// storage not registered

	ready, reason := tracker.isReady()
	if ready {
		t.Error("expected not ready")
	}
	if reason == "" {
		t.Error("expected a reason explaining why not ready")
	}
}

func TestHealthHandler(t *testing.T) {
	resetTracker()
	SetVersion("test")
	RegisterComponent("storage", true, "")
	RegisterComponent("api", true, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	HealthHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var status Status
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("expected healthy, got %s", status.Status)
	}
	if status.Version != "test" {
		t.Errorf("expected version 'test', got %s", status.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetTracker()
	RegisterComponent("storage", false, "broken")
	RegisterComponent("api", true, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	HealthHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestReadyHandler(t *testing.T) {
	resetTracker()
	RegisterComponent("storage", true, "")
	RegisterComponent("api", true, "")

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	ReadyHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetTracker()
	RegisterComponent("api", true, "")
	// storage not registered

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	ReadyHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	resetTracker()

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()
	LivenessHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var status Status
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "alive" {
		t.Errorf("expected alive, got %s", status.Status)
	}
	if status.Uptime == "" {
		t.Error("uptime should not be empty")
	}
}

func TestUpdateComponent(t *testing.T) {
	resetTracker()
	RegisterComponent("storage", true, "ok")
	UpdateComponent("storage", false, "error")

	healthy, reason := tracker.isHealthy()
	if healthy {
		t.Error("expected unhealthy after update")
	}
	if reason == "" {
		t.Error("expected a reason")
	}
}
