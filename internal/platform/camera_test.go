package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, dir, name string, content []byte, modTime time.Time) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	if !modTime.IsZero() {
		require.NoError(t, os.Chtimes(path, modTime, modTime))
	}
	return path
}

func TestDirectoryCamera(t *testing.T) {
	ctx := context.Background()

	t.Run("still returns the newest fresh frame", func(t *testing.T) {
		dir := t.TempDir()
		now := time.Now()
		writeFrame(t, dir, "older.jpg", []byte("older"), now.Add(-3*time.Second))
		writeFrame(t, dir, "newest.jpg", []byte("newest"), now)

		camera := NewDirectoryCamera(dir, 10)
		session, err := camera.Acquire(ctx)
		require.NoError(t, err)
		defer session.Release()

		data, name, err := session.Still(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("newest"), data)
		assert.Equal(t, "newest.jpg", name)
	})

	t.Run("stale frames are ignored", func(t *testing.T) {
		dir := t.TempDir()
		writeFrame(t, dir, "stale.jpg", []byte("stale"), time.Now().Add(-time.Minute))

		camera := NewDirectoryCamera(dir, 10)
		session, err := camera.Acquire(ctx)
		require.NoError(t, err)
		defer session.Release()

		_, _, err = session.Still(ctx)
		assert.ErrorIs(t, err, ErrNoFreshFrame)
	})

	t.Run("non-frame files are ignored", func(t *testing.T) {
		dir := t.TempDir()
		writeFrame(t, dir, "notes.txt", []byte("text"), time.Time{})

		camera := NewDirectoryCamera(dir, 10)
		session, err := camera.Acquire(ctx)
		require.NoError(t, err)
		defer session.Release()

		_, _, err = session.Still(ctx)
		assert.ErrorIs(t, err, ErrNoFreshFrame)
	})

	t.Run("missing directory fails acquisition", func(t *testing.T) {
		camera := NewDirectoryCamera(filepath.Join(t.TempDir(), "absent"), 10)
		_, err := camera.Acquire(ctx)
		assert.Error(t, err)
	})

	t.Run("session ownership is exclusive until release", func(t *testing.T) {
		dir := t.TempDir()
		camera := NewDirectoryCamera(dir, 10)

		session, err := camera.Acquire(ctx)
		require.NoError(t, err)

		_, err = camera.Acquire(ctx)
		assert.ErrorIs(t, err, ErrCameraBusy)

		session.Release()
		session.Release() // Double release is harmless

		second, err := camera.Acquire(ctx)
		require.NoError(t, err)
		second.Release()
	})
}

func TestStaticLocationSource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the configured coordinates", func(t *testing.T) {
		lat, lng := 48.8566, 2.3522
		source := NewStaticLocationSource(&lat, &lng)

		gotLat, gotLng := source.Fix(ctx)
		require.NotNil(t, gotLat)
		require.NotNil(t, gotLng)
		assert.InDelta(t, lat, *gotLat, 0.0001)
		assert.InDelta(t, lng, *gotLng, 0.0001)
	})

	t.Run("unconfigured source yields no fix", func(t *testing.T) {
		source := NewStaticLocationSource(nil, nil)
		gotLat, gotLng := source.Fix(ctx)
		assert.Nil(t, gotLat)
		assert.Nil(t, gotLng)
	})

	t.Run("partial pair is treated as absent", func(t *testing.T) {
		lat := 1.0
		source := NewStaticLocationSource(&lat, nil)
		gotLat, gotLng := source.Fix(ctx)
		assert.Nil(t, gotLat)
		assert.Nil(t, gotLng)
	})
}
