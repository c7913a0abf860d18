package repository

import (
	"context"
	"time"

	"github.com/presencesync/agent/internal/models"
)

// QueueRepo defines the durable local queue of capture records
type QueueRepo interface {
	Enqueue(ctx context.Context, record *models.CaptureRecord) error
	GetByID(ctx context.Context, id string) (*models.CaptureRecord, error)
	ListPending(ctx context.Context) ([]*models.CaptureRecord, error)
	MarkSynced(ctx context.Context, id string) error
	DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int, error)
	CountPending(ctx context.Context) (int, error)
	CountSynced(ctx context.Context) (int, error)
}

// DeviceIdentityRepo defines the single persistent device identity slot
type DeviceIdentityRepo interface {
	Get(ctx context.Context) (string, error)
	Save(ctx context.Context, deviceID string) error
}
