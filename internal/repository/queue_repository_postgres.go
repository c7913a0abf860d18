package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/presencesync/agent/internal/models"
)

// QueueRepositoryPostgres handles capture record persistence on PostgreSQL
type QueueRepositoryPostgres struct {
	db *sql.DB
}

// NewQueueRepositoryPostgres creates a new QueueRepositoryPostgres
func NewQueueRepositoryPostgres(db *sql.DB) *QueueRepositoryPostgres {
	return &QueueRepositoryPostgres{db: db}
}

func (r *QueueRepositoryPostgres) Enqueue(ctx context.Context, record *models.CaptureRecord) error {
	query := `
		INSERT INTO capture_records (id, session_id, photo, latitude, longitude, device_id, captured_at, sync_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.SessionID, record.Photo, record.Latitude,
		record.Longitude, record.DeviceID, record.Timestamp, record.SyncStatus,
	)
	return err
}

func (r *QueueRepositoryPostgres) GetByID(ctx context.Context, id string) (*models.CaptureRecord, error) {
	query := `
		SELECT id, session_id, photo, latitude, longitude, device_id, captured_at, sync_status
		FROM capture_records WHERE id = $1
	`

	var record models.CaptureRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.SessionID, &record.Photo, &record.Latitude,
		&record.Longitude, &record.DeviceID, &record.Timestamp, &record.SyncStatus,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *QueueRepositoryPostgres) ListPending(ctx context.Context) ([]*models.CaptureRecord, error) {
	query := `
		SELECT id, session_id, photo, latitude, longitude, device_id, captured_at, sync_status
		FROM capture_records WHERE sync_status = $1
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
			&record.ID, &record.SessionID, &record.Photo, &record.Latitude,
			&record.Longitude, &record.DeviceID, &record.Timestamp, &record.SyncStatus,
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

func (r *QueueRepositoryPostgres) MarkSynced(ctx context.Context, id string) error {
	query := `
		UPDATE capture_records SET sync_status = $1, synced_at = $2
		WHERE id = $3 AND sync_status = $4
	`

	_, err := r.db.ExecContext(ctx, query, models.SyncSynced, time.Now().UTC(), id, models.SyncPending)
	return err
}

func (r *QueueRepositoryPostgres) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM capture_records WHERE sync_status = $1 AND captured_at < $2`

	result, err := r.db.ExecContext(ctx, query, models.SyncSynced, cutoff)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	return int(affected), err
}

func (r *QueueRepositoryPostgres) CountPending(ctx context.Context) (int, error) {
	return r.countByStatus(ctx, models.SyncPending)
}

func (r *QueueRepositoryPostgres) CountSynced(ctx context.Context) (int, error) {
	return r.countByStatus(ctx, models.SyncSynced)
}

func (r *QueueRepositoryPostgres) countByStatus(ctx context.Context, status models.SyncStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM capture_records WHERE sync_status = $1`, status).Scan(&count)
	return count, err
}
