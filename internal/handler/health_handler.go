// internal/handler/health_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is a dependency that can report its own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// HealthHandler checks every registered dependency. Optional dependencies
// are reported but never make the service unhealthy.
type HealthHandler struct {
	Checks   map[string]Pinger
	Optional map[string]Pinger
	Timeout  time.Duration
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	services := make(map[string]string)
	status := "healthy"

	for name, p := range h.Checks {
		if err := p.Ping(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			services[name] = "healthy"
		}
	}
	for name, p := range h.Optional {
		if err := p.Ping(ctx); err != nil {
			services[name] = "degraded: " + err.Error()
		} else {
			services[name] = "healthy"
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
