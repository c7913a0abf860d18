package handlers

import (
	"context"
	"net/http"

	"github.com/presencesync/agent/internal/models"
	"github.com/presencesync/agent/internal/repository"
	"github.com/presencesync/agent/internal/services"
)

// SyncStatusResponse is the combined status payload for the control API
type SyncStatusResponse struct {
	Online bool                      `json:"online"`
	Engine services.SyncEngineStatus `json:"engine"`
	Queue  models.QueueStats         `json:"queue"`
}

// SyncHandler exposes the sync engine and queue over the control API
type SyncHandler struct {
	sync     *services.SyncService
	observer *services.ConnectivityObserver
	queue    repository.QueueRepo
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(sync *services.SyncService, observer *services.ConnectivityObserver, queue repository.QueueRepo) *SyncHandler {
	return &SyncHandler{
		sync:     sync,
		observer: observer,
		queue:    queue,
	}
}

// GetStatus returns connectivity, engine activity and queue counts
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.CountPending(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	synced, err := h.queue.CountSynced(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	respondJSON(w, http.StatusOK, SyncStatusResponse{
		Online: h.observer.Online(),
		Engine: h.sync.Status(),
		Queue:  models.QueueStats{Pending: pending, Synced: synced},
	})
}

// RunSync triggers a drain pass in the background. This is the deferred
// background work callback: best-effort, fire and forget, safe to
// overlap with any other trigger.
func (h *SyncHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	go h.sync.DrainPending(context.Background())
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "drain started"})
}

// GetQueue lists pending records without their photo payloads
func (h *SyncHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.ListPending(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	items := make([]models.QueueItem, 0, len(pending))
	for _, record := range pending {
		items = append(items, models.QueueItem{
			ID:             record.ID,
			SessionID:      record.SessionID,
			DeviceID:       record.DeviceID,
			Timestamp:      record.Timestamp,
			HasCoordinates: record.HasCoordinates(),
			SyncStatus:     string(record.SyncStatus),
		})
	}

	respondJSON(w, http.StatusOK, items)
}
