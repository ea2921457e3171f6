package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status is the JSON body served by /healthz, /readyz, and /livez.
type Status struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime"`
	Message   string    `json:"message,omitempty"`
}

// trackedComponents are kvdoc's two startup dependencies. Both must be
// registered healthy before /readyz returns 200.
var trackedComponents = [...]string{"storage", "api"}

var tracker = &componentTracker{
	start:   time.Now(),
	healthy: make(map[string]bool, len(trackedComponents)),
	reason:  make(map[string]string, len(trackedComponents)),
}

type componentTracker struct {
	mu      sync.RWMutex
	start   time.Time
	version string
	healthy map[string]bool
	reason  map[string]string
}

// SetVersion records the version string reported by /healthz.
func SetVersion(version string) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.version = version
}

// RegisterComponent records whether name ("storage" or "api") is healthy.
// message explains an unhealthy state and is surfaced by /healthz/readyz.
func RegisterComponent(name string, healthy bool, message string) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.healthy[name] = healthy
	if healthy {
		delete(tracker.reason, name)
	} else {
		tracker.reason[name] = message
	}
}

// UpdateComponent updates a component already registered at startup.
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// isHealthy reports unhealthy only for components that were explicitly
// registered unhealthy; a component that simply hasn't reported yet doesn't
// fail liveness, only readiness.
func (t *componentTracker) isHealthy() (bool, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range trackedComponents {
		if healthy, registered := t.healthy[c]; registered && !healthy {
			return false, c + ": " + t.reason[c]
		}
	}
	return true, ""
}

// isReady additionally requires every tracked component to have registered
// at all, since "not yet initialized" and "initialized but broken" both
// mean the process can't serve traffic yet.
func (t *componentTracker) isReady() (bool, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range trackedComponents {
		healthy, registered := t.healthy[c]
		if !registered {
			return false, "waiting for " + c + " to initialize"
		}
		if !healthy {
			return false, c + ": " + t.reason[c]
		}
	}
	return true, ""
}

func (t *componentTracker) snapshot() (version string, uptime time.Duration) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version, time.Since(t.start)
}

func writeStatus(w http.ResponseWriter, code int, s Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(s)
}

// HealthHandler reports 503 if storage or api has been registered
// unhealthy, 200 otherwise.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthy, reason := tracker.isHealthy()
		version, uptime := tracker.snapshot()
		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		writeStatus(w, code, Status{
			Status: status, Timestamp: time.Now(), Version: version,
			Uptime: uptime.String(), Message: reason,
		})
	}
}

// ReadyHandler reports 200 once both storage and api have registered ready,
// 503 otherwise.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready, reason := tracker.isReady()
		version, uptime := tracker.snapshot()
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		writeStatus(w, code, Status{
			Status: status, Timestamp: time.Now(), Version: version,
			Uptime: uptime.String(), Message: reason,
		})
	}
}

// LivenessHandler always reports 200 while the process is running.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, uptime := tracker.snapshot()
		writeStatus(w, http.StatusOK, Status{
			Status: "alive", Timestamp: time.Now(), Uptime: uptime.String(),
		})
	}
}
