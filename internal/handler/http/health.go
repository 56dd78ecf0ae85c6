package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	readyCheck func(ctx context.Context) error
	stats      func() map[string]interface{}
	log        *zap.Logger
}

// NewHealthHandler builds the handler. readyCheck pings the backing store
// (nil means always ready); stats reports processor queue metrics.
func NewHealthHandler(readyCheck func(ctx context.Context) error, stats func() map[string]interface{}, log *zap.Logger) *HealthHandler {
	return &HealthHandler{
		readyCheck: readyCheck,
		stats:      stats,
		log:        log,
	}
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Processor map[string]interface{} `json:"processor,omitempty"`
}

var startTime = time.Now()

// Health is the liveness endpoint.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).String(),
	}
	if h.stats != nil {
		response.Processor = h.stats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("failed to encode health response", zap.Error(err))
	}
}

// Ready is the readiness endpoint: it checks the backing store.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	statusCode := http.StatusOK

	if h.readyCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := h.readyCheck(ctx); err != nil {
			h.log.Warn("readiness check failed", zap.Error(err))
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
	})
}
