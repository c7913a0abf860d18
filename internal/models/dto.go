package models

import "time"

// HealthResponse reports agent liveness for the control API.
type HealthResponse struct {
	Status    string    `json:"status"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CaptureRequest is the control-API payload that starts a capture flow.
type CaptureRequest struct {
	SessionID string `json:"sessionId"`
}

// CaptureResponse reports the terminal outcome of a capture flow.
type CaptureResponse struct {
	State    string              `json:"state"`
	Cause    string              `json:"cause,omitempty"`
	RecordID string              `json:"recordId,omitempty"`
	Result   *VerificationResult `json:"result,omitempty"`
}

// DrainResultDTO mirrors a drain pass outcome on the wire.
type DrainResultDTO struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Deleted   int `json:"deleted"`
}

// QueueStats summarizes the local queue for the status API.
type QueueStats struct {
	Pending int `json:"pending"`
	Synced  int `json:"synced"`
}

// QueueItem is a pending record summary, photo payload omitted.
type QueueItem struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	DeviceID       string    `json:"deviceId"`
	Timestamp      time.Time `json:"timestamp"`
	HasCoordinates bool      `json:"hasCoordinates"`
	SyncStatus     string    `json:"syncStatus"`
}

// ErrorResponse is the standard error envelope for the control API.
type ErrorResponse struct {
	Error string `json:"error"`
}
