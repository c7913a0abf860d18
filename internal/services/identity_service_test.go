package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presencesync/agent/internal/repository"
)

func setupIdentityTest(t *testing.T) (*IdentityService, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "agent.db")
	db, err := repository.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewIdentityService(repository.NewDeviceIdentityRepository(db)), dbPath
}

func TestIdentityServiceDeviceID(t *testing.T) {
	ctx := context.Background()

	t.Run("generates an id on first use", func(t *testing.T) {
		svc, _ := setupIdentityTest(t)

		id, err := svc.DeviceID(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Contains(t, id, "dev-")
	})

	t.Run("returns the same id on every call", func(t *testing.T) {
		svc, _ := setupIdentityTest(t)

		first, err := svc.DeviceID(ctx)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			again, err := svc.DeviceID(ctx)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("survives a restart", func(t *testing.T) {
		svc, dbPath := setupIdentityTest(t)

		first, err := svc.DeviceID(ctx)
		require.NoError(t, err)

		db, err := repository.NewSQLiteDB(dbPath)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		reopened := NewIdentityService(repository.NewDeviceIdentityRepository(db))
		again, err := reopened.DeviceID(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	})

	t.Run("concurrent first calls agree on one id", func(t *testing.T) {
		svc, _ := setupIdentityTest(t)

		ids := make([]string, 8)
		var wg sync.WaitGroup
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := svc.DeviceID(ctx)
				assert.NoError(t, err)
				ids[i] = id
			}(i)
		}
		wg.Wait()

		for _, id := range ids[1:] {
			assert.Equal(t, ids[0], id)
		}
	})
}
