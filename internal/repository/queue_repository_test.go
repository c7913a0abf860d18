package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presencesync/agent/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRecord(t *testing.T, sessionID string) *models.CaptureRecord {
	record, err := models.NewCaptureRecord(sessionID, []byte("jpeg"), nil, nil, "dev-1")
	require.NoError(t, err)
	return record
}

func TestQueueRepository_Enqueue(t *testing.T) {
	t.Run("round-trips a record with coordinates", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))
		ctx := context.Background()

		lat := 51.5074
		lng := -0.1278
		record, err := models.NewCaptureRecord("session-7", []byte("jpeg"), &lat, &lng, "dev-1")
		require.NoError(t, err)

		require.NoError(t, repo.Enqueue(ctx, record))

		got, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, record.SessionID, got.SessionID)
		assert.Equal(t, record.Photo, got.Photo)
		assert.Equal(t, record.DeviceID, got.DeviceID)
		assert.Equal(t, models.SyncPending, got.SyncStatus)
		require.NotNil(t, got.Latitude)
		require.NotNil(t, got.Longitude)
		assert.InDelta(t, lat, *got.Latitude, 1e-9)
		assert.InDelta(t, lng, *got.Longitude, 1e-9)
	})

	t.Run("round-trips a record without coordinates", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))
		ctx := context.Background()

		record := newTestRecord(t, "session-7")
		require.NoError(t, repo.Enqueue(ctx, record))

		got, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Nil(t, got.Latitude)
		assert.Nil(t, got.Longitude)
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))
		ctx := context.Background()

		record := newTestRecord(t, "session-7")
		require.NoError(t, repo.Enqueue(ctx, record))
		assert.Error(t, repo.Enqueue(ctx, record))
	})

	t.Run("returns nil for unknown id", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))

		got, err := repo.GetByID(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestQueueRepository_ListPending(t *testing.T) {
	t.Run("returns only pending records", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))
		ctx := context.Background()

		first := newTestRecord(t, "session-1")
		second := newTestRecord(t, "session-2")
		require.NoError(t, repo.Enqueue(ctx, first))
		require.NoError(t, repo.Enqueue(ctx, second))
		require.NoError(t, repo.MarkSynced(ctx, first.ID))

		pending, err := repo.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, second.ID, pending[0].ID)
	})

	t.Run("returns empty slice when queue is drained", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))

		pending, err := repo.ListPending(context.Background())
		require.NoError(t, err)
		assert.Empty(t, pending)
		assert.NotNil(t, pending)
	})
}

func TestQueueRepository_MarkSynced(t *testing.T) {
	t.Run("marks a pending record synced", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))
		ctx := context.Background()

		record := newTestRecord(t, "session-1")
		require.NoError(t, repo.Enqueue(ctx, record))
		require.NoError(t, repo.MarkSynced(ctx, record.ID))

		got, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SyncSynced, got.SyncStatus)
	})

	t.Run("is idempotent", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))
		ctx := context.Background()

		record := newTestRecord(t, "session-1")
		require.NoError(t, repo.Enqueue(ctx, record))
		require.NoError(t, repo.MarkSynced(ctx, record.ID))
		require.NoError(t, repo.MarkSynced(ctx, record.ID))

		got, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SyncSynced, got.SyncStatus)
	})

	t.Run("is a no-op for an absent id", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))
		assert.NoError(t, repo.MarkSynced(context.Background(), "missing"))
	})
}

func TestQueueRepository_DeleteSyncedBefore(t *testing.T) {
	t.Run("deletes old synced records only", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))
		ctx := context.Background()

		oldSynced := newTestRecord(t, "session-1")
		oldSynced.Timestamp = time.Now().UTC().Add(-10 * 24 * time.Hour)
		freshSynced := newTestRecord(t, "session-2")
		oldPending := newTestRecord(t, "session-3")
		oldPending.Timestamp = time.Now().UTC().Add(-30 * 24 * time.Hour)

		require.NoError(t, repo.Enqueue(ctx, oldSynced))
		require.NoError(t, repo.Enqueue(ctx, freshSynced))
		require.NoError(t, repo.Enqueue(ctx, oldPending))
		require.NoError(t, repo.MarkSynced(ctx, oldSynced.ID))
		require.NoError(t, repo.MarkSynced(ctx, freshSynced.ID))

		deleted, err := repo.DeleteSyncedBefore(ctx, time.Now().UTC().Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		gone, err := repo.GetByID(ctx, oldSynced.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		kept, err := repo.GetByID(ctx, freshSynced.ID)
		require.NoError(t, err)
		assert.NotNil(t, kept)

		// A pending record is never deleted regardless of age
		retained, err := repo.GetByID(ctx, oldPending.ID)
		require.NoError(t, err)
		require.NotNil(t, retained)
		assert.Equal(t, models.SyncPending, retained.SyncStatus)
	})
}

func TestQueueRepository_Counts(t *testing.T) {
	t.Run("counts pending and synced separately", func(t *testing.T) {
		repo := NewQueueRepository(setupTestDB(t))
		ctx := context.Background()

		first := newTestRecord(t, "session-1")
		second := newTestRecord(t, "session-2")
		require.NoError(t, repo.Enqueue(ctx, first))
		require.NoError(t, repo.Enqueue(ctx, second))
		require.NoError(t, repo.MarkSynced(ctx, first.ID))

		pending, err := repo.CountPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, pending)

		synced, err := repo.CountSynced(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, synced)
	})
}

func TestQueueRepository_SurvivesReopen(t *testing.T) {
	t.Run("pending records persist across restarts", func(t *testing.T) {
		dir := t.TempDir()
		dbPath := filepath.Join(dir, "agent.db")
		ctx := context.Background()

		db, err := NewSQLiteDB(dbPath)
		require.NoError(t, err)

		record := newTestRecord(t, "session-1")
		require.NoError(t, NewQueueRepository(db).Enqueue(ctx, record))
		require.NoError(t, db.Close())

		reopened, err := NewSQLiteDB(dbPath)
		require.NoError(t, err)
		defer reopened.Close()

		pending, err := NewQueueRepository(reopened).ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, record.ID, pending[0].ID)
	})
}
