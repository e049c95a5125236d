package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	startedAt time.Time
}

// NewHealthHandler creates a health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now()}
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// Health reports service liveness.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
	})
}
