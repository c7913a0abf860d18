package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/presencesync/agent/internal/models"
)

// QueueRepository handles capture record persistence on SQLite
type QueueRepository struct {
	db *sql.DB
}

// NewQueueRepository creates a new QueueRepository
func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a new pending capture record
func (r *QueueRepository) Enqueue(ctx context.Context, record *models.CaptureRecord) error {
	query := `
		INSERT INTO capture_records (id, session_id, photo, latitude, longitude, device_id, captured_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.SessionID,
		record.Photo,
		record.Latitude,
		record.Longitude,
		record.DeviceID,
		record.Timestamp,
		record.SyncStatus,
	)

	return err
}

// GetByID retrieves a capture record by its id
func (r *QueueRepository) GetByID(ctx context.Context, id string) (*models.CaptureRecord, error) {
	query := `
		SELECT id, session_id, photo, latitude, longitude, device_id, captured_at, sync_status
		FROM capture_records WHERE id = ?
	`

	var record models.CaptureRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.SessionID,
		&record.Photo,
		&record.Latitude,
		&record.Longitude,
		&record.DeviceID,
		&record.Timestamp,
		&record.SyncStatus,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// ListPending returns a snapshot of all pending records. Order is
// unspecified; callers must not rely on it.
func (r *QueueRepository) ListPending(ctx context.Context) ([]*models.CaptureRecord, error) {
	query := `
		SELECT id, session_id, photo, latitude, longitude, device_id, captured_at, sync_status
		FROM capture_records WHERE sync_status = ?
	`

	rows, err := r.db.QueryContext(ctx, query, models.SyncPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.CaptureRecord
	for rows.Next() {
		var record models.CaptureRecord
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.Photo,
			&record.Latitude,
			&record.Longitude,
			&record.DeviceID,
			&record.Timestamp,
			&record.SyncStatus,
		); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}

	if records == nil {
		records = []*models.CaptureRecord{}
	}

	return records, rows.Err()
}

// MarkSynced sets a record's status to synced. Idempotent: marking an
// already-synced or absent record is a no-op, not an error.
func (r *QueueRepository) MarkSynced(ctx context.Context, id string) error {
	query := `
		UPDATE capture_records SET sync_status = ?, synced_at = ?
		WHERE id = ? AND sync_status = ?
	`

	_, err := r.db.ExecContext(ctx, query, models.SyncSynced, time.Now().UTC(), id, models.SyncPending)
	return err
}

// DeleteSyncedBefore removes synced records captured before the cutoff.
// Pending records are never deleted regardless of age.
func (r *QueueRepository) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM capture_records WHERE sync_status = ? AND captured_at < ?`

	result, err := r.db.ExecContext(ctx, query, models.SyncSynced, cutoff)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	return int(affected), err
}

// CountPending returns the number of pending records
func (r *QueueRepository) CountPending(ctx context.Context) (int, error) {
	return r.countByStatus(ctx, models.SyncPending)
}

// CountSynced returns the number of synced records still retained
func (r *QueueRepository) CountSynced(ctx context.Context) (int, error) {
	return r.countByStatus(ctx, models.SyncSynced)
}

func (r *QueueRepository) countByStatus(ctx context.Context, status models.SyncStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM capture_records WHERE sync_status = ?`, status).Scan(&count)
	return count, err
}
