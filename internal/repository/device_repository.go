package repository

import (
	"context"
	"database/sql"
)

// DeviceIdentityRepository implements DeviceIdentityRepo for PostgreSQL/SQLite
type DeviceIdentityRepository struct {
	db *sql.DB
}

// NewDeviceIdentityRepository creates a new DeviceIdentityRepository
func NewDeviceIdentityRepository(db *sql.DB) *DeviceIdentityRepository {
	return &DeviceIdentityRepository{db: db}
}

// Get returns the persisted device id, or "" when none exists yet
func (r *DeviceIdentityRepository) Get(ctx context.Context) (string, error) {
	var deviceID string
	err := r.db.QueryRowContext(ctx, `SELECT device_id FROM device_identity WHERE slot = 1`).Scan(&deviceID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return deviceID, nil
}

// Save persists the device id into the single identity slot. The insert
// is a no-op if a value already exists, so a racing first call cannot
// overwrite an identity another caller just persisted.
func (r *DeviceIdentityRepository) Save(ctx context.Context, deviceID string) error {
	query := `INSERT INTO device_identity (slot, device_id) VALUES (1, $1)
			  ON CONFLICT (slot) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, deviceID)
	return err
}
