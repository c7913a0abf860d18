package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection.
// Used by kiosk fleets that delegate queue durability to a co-located
// server instead of per-device SQLite.
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS capture_records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		photo BYTEA NOT NULL,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		device_id TEXT NOT NULL,
		captured_at TIMESTAMP NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		synced_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_capture_records_status ON capture_records(sync_status);
	CREATE INDEX IF NOT EXISTS idx_capture_records_captured_at ON capture_records(captured_at);

	CREATE TABLE IF NOT EXISTS device_identity (
		slot INTEGER PRIMARY KEY DEFAULT 1,
		device_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		CHECK (slot = 1)
	);
	`

	_, err := db.Exec(schema)
	return err
}
