package repository

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes the on-device SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL keeps committed writes durable across process crashes
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Capture records (the durable local queue)
	CREATE TABLE IF NOT EXISTS capture_records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		photo BLOB NOT NULL,
		latitude REAL,
		longitude REAL,
		device_id TEXT NOT NULL,
		captured_at DATETIME NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		synced_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_capture_records_status ON capture_records(sync_status);
	CREATE INDEX IF NOT EXISTS idx_capture_records_captured_at ON capture_records(captured_at);

	-- Device identity (single slot)
	CREATE TABLE IF NOT EXISTS device_identity (
		slot INTEGER PRIMARY KEY DEFAULT 1,
		device_id TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (slot = 1)
	);
	`

	_, err := db.Exec(schema)
	return err
}
