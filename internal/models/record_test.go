package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCaptureRecord(t *testing.T) {
	photo := []byte("fake jpeg bytes")

	t.Run("creates pending record with valid parameters", func(t *testing.T) {
		lat := 43.6532
		lng := -79.3832

		record, err := NewCaptureRecord("session-42", photo, &lat, &lng, "dev-1")

		require.NoError(t, err)
		assert.NotEmpty(t, record.ID)
		assert.Equal(t, "session-42", record.SessionID)
		assert.Equal(t, photo, record.Photo)
		assert.Equal(t, "dev-1", record.DeviceID)
		assert.Equal(t, SyncPending, record.SyncStatus)
		assert.True(t, record.HasCoordinates())
		assert.WithinDuration(t, time.Now().UTC(), record.Timestamp, time.Second*5)
	})

	t.Run("allows absent coordinates", func(t *testing.T) {
		record, err := NewCaptureRecord("session-42", photo, nil, nil, "dev-1")

		require.NoError(t, err)
		assert.False(t, record.HasCoordinates())
		assert.Nil(t, record.Latitude)
		assert.Nil(t, record.Longitude)
	})

	t.Run("rejects empty session id", func(t *testing.T) {
		_, err := NewCaptureRecord("  ", photo, nil, nil, "dev-1")
		assert.ErrorIs(t, err, ErrEmptySessionID)
	})

	t.Run("rejects empty photo", func(t *testing.T) {
		_, err := NewCaptureRecord("session-42", nil, nil, nil, "dev-1")
		assert.ErrorIs(t, err, ErrEmptyPhoto)
	})

	t.Run("rejects empty device id", func(t *testing.T) {
		_, err := NewCaptureRecord("session-42", photo, nil, nil, "")
		assert.ErrorIs(t, err, ErrEmptyDeviceID)
	})

	t.Run("rejects latitude without longitude", func(t *testing.T) {
		lat := 1.0
		_, err := NewCaptureRecord("session-42", photo, &lat, nil, "dev-1")
		assert.ErrorIs(t, err, ErrPartialCoordinates)
	})

	t.Run("generates unique ids for rapid captures", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			record, err := NewCaptureRecord("session-42", photo, nil, nil, "dev-1")
			require.NoError(t, err)
			assert.False(t, seen[record.ID], "duplicate id %s", record.ID)
			seen[record.ID] = true
		}
	})
}

func TestVerdict(t *testing.T) {
	t.Run("all three verdicts are valid and confirmed", func(t *testing.T) {
		for _, v := range []Verdict{VerdictApproved, VerdictFlagged, VerdictRejected} {
			assert.True(t, v.IsValid())
			assert.True(t, v.Confirmed())
		}
	})

	t.Run("unknown verdict is unconfirmed", func(t *testing.T) {
		assert.False(t, Verdict("maybe").IsValid())
		assert.False(t, Verdict("").Confirmed())
	})
}
