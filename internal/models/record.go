package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks whether a capture record has been confirmed by the
// verification service. The only legal transition is pending -> synced.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
)

// CaptureRecord represents one attempted check-in, created at the moment
// a still photo is produced. Everything except SyncStatus is write-once.
type CaptureRecord struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	Photo      []byte     `json:"-"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	DeviceID   string     `json:"deviceId"`
	Timestamp  time.Time  `json:"timestamp"`
	SyncStatus SyncStatus `json:"syncStatus"`
}

// NewCaptureRecord creates a pending CaptureRecord with a freshly
// generated id and capture timestamp. Coordinates are optional and may
// both be nil.
func NewCaptureRecord(sessionID string, photo []byte, lat, lng *float64, deviceID string) (*CaptureRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrEmptySessionID
	}
	if len(photo) == 0 {
		return nil, ErrEmptyPhoto
	}
	if strings.TrimSpace(deviceID) == "" {
		return nil, ErrEmptyDeviceID
	}
	if (lat == nil) != (lng == nil) {
		return nil, ErrPartialCoordinates
	}

	return &CaptureRecord{
		ID:         NewLocalID(),
		SessionID:  sessionID,
		Photo:      photo,
		Latitude:   lat,
		Longitude:  lng,
		DeviceID:   deviceID,
		Timestamp:  time.Now().UTC(),
		SyncStatus: SyncPending,
	}, nil
}

// NewLocalID generates a locally-unique identifier: millisecond timestamp
// plus a random suffix, so ids stay roughly sortable but never collide
// across rapid back-to-back captures.
func NewLocalID() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}

// HasCoordinates reports whether a geolocation fix was attached.
func (r *CaptureRecord) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// IsSynced reports whether the record has been confirmed by the remote
// verification service.
func (r *CaptureRecord) IsSynced() bool {
	return r.SyncStatus == SyncSynced
}

// Errors
type RecordError struct {
	Message string
}

func (e RecordError) Error() string {
	return e.Message
}

var (
	ErrEmptySessionID     = RecordError{"session id cannot be empty"}
	ErrEmptyPhoto         = RecordError{"photo payload cannot be empty"}
	ErrEmptyDeviceID      = RecordError{"device id cannot be empty"}
	ErrPartialCoordinates = RecordError{"latitude and longitude must be set together"}
	ErrRecordNotFound     = RecordError{"capture record not found"}
)
