package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/presencesync/agent/internal/models"
	"github.com/presencesync/agent/internal/services"
)

// FlowFactory creates one capture flow per check-in attempt
type FlowFactory func(sessionID string) *services.CaptureFlow

// CaptureHandler runs capture flows on behalf of the kiosk UI
type CaptureHandler struct {
	newFlow FlowFactory
}

// NewCaptureHandler creates a new CaptureHandler
func NewCaptureHandler(newFlow FlowFactory) *CaptureHandler {
	return &CaptureHandler{newFlow: newFlow}
}

// StartCapture runs a complete check-in attempt for a session and
// reports its terminal state. The flow publishes intermediate states
// over the event hub while this request is in flight.
func (h *CaptureHandler) StartCapture(w http.ResponseWriter, r *http.Request) {
	var req models.CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		respondError(w, http.StatusBadRequest, "sessionId is required.")
		return
	}

	flow := h.newFlow(req.SessionID)
	outcome, err := flow.Run(r.Context())
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, models.CaptureResponse{
		State:    string(outcome.State),
		Cause:    outcome.Cause,
		RecordID: outcome.RecordID,
		Result:   outcome.Result,
	})
}
