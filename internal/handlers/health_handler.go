package handlers

import (
	"net/http"
	"time"

	"github.com/presencesync/agent/internal/models"
	"github.com/presencesync/agent/internal/services"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	identity *services.IdentityService
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(identity *services.IdentityService) *HealthHandler {
	return &HealthHandler{identity: identity}
}

// HealthCheck returns the agent health status and device identity
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	}

	// Identity is informational here; health stays green even if the
	// store is briefly unreadable
	if h.identity != nil {
		if deviceID, err := h.identity.DeviceID(r.Context()); err == nil {
			response.DeviceID = deviceID
		}
	}

	respondJSON(w, http.StatusOK, response)
}
