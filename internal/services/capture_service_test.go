package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presencesync/agent/internal/models"
	"github.com/presencesync/agent/internal/repository"
)

type fakeSession struct {
	frame      []byte
	stillErr   error
	releases   int
	stillCalls int
}

func (s *fakeSession) Still(ctx context.Context) ([]byte, string, error) {
	s.stillCalls++
	if s.stillErr != nil {
		return nil, "", s.stillErr
	}
	return s.frame, "frame.jpg", nil
}

func (s *fakeSession) Release() {
	s.releases++
}

type fakeCamera struct {
	session    *fakeSession
	acquireErr error
}

func (c *fakeCamera) Acquire(ctx context.Context) (CameraSession, error) {
	if c.acquireErr != nil {
		return nil, c.acquireErr
	}
	return c.session, nil
}

type fakeLocation struct {
	lat, lng *float64
}

func (l *fakeLocation) Fix(ctx context.Context) (*float64, *float64) {
	return l.lat, l.lng
}

func testFrame(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type captureTestEnv struct {
	flow     *CaptureFlow
	queue    *repository.QueueRepository
	camera   *fakeCamera
	session  *fakeSession
	verifier *stubVerifier
	changes  *[]StateChange
}

func setupCaptureFlow(t *testing.T, mutate func(deps *CaptureFlowDeps)) *captureTestEnv {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	queue := repository.NewQueueRepository(db)
	identity := NewIdentityService(repository.NewDeviceIdentityRepository(db))
	session := &fakeSession{frame: testFrame(t)}
	camera := &fakeCamera{session: session}
	verifier := newStubVerifier()

	deps := CaptureFlowDeps{
		Camera:   camera,
		Location: &fakeLocation{},
		Images:   NewImageService(10, 10, 1280, 85),
		Queue:    queue,
		Identity: identity,
		Verifier: verifier,
	}
	if mutate != nil {
		mutate(&deps)
	}

	flow := NewCaptureFlow("session-1", deps)
	changes := &[]StateChange{}
	flow.Subscribe(func(c StateChange) {
		*changes = append(*changes, c)
	})

	return &captureTestEnv{
		flow:     flow,
		queue:    queue,
		camera:   camera,
		session:  session,
		verifier: verifier,
		changes:  changes,
	}
}

func stateSequence(changes []StateChange) []CaptureState {
	states := make([]CaptureState, len(changes))
	for i, c := range changes {
		states[i] = c.State
	}
	return states
}

func TestCaptureFlowRun(t *testing.T) {
	ctx := context.Background()

	t.Run("approved verdict reaches success", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, StateSuccess, outcome.State)
		assert.NotEmpty(t, outcome.RecordID)
		require.NotNil(t, outcome.Result)
		assert.Equal(t, models.VerdictApproved, outcome.Result.Verdict)

		assert.Equal(t, []CaptureState{
			StateCamera, StateLocation, StateSubmitting, StateSuccess,
		}, stateSequence(*env.changes))

		stored, err := env.queue.GetByID(ctx, outcome.RecordID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.True(t, stored.IsSynced())
		assert.Equal(t, "session-1", stored.SessionID)
		assert.NotEmpty(t, stored.Photo)

		assert.Equal(t, 1, env.session.releases)
	})

	t.Run("flagged verdict also reaches success", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)
		env.verifier.verdictAll(models.VerdictFlagged)

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, StateSuccess, outcome.State)
		require.NotNil(t, outcome.Result)
		assert.Equal(t, models.VerdictFlagged, outcome.Result.Verdict)

		stored, err := env.queue.GetByID(ctx, outcome.RecordID)
		require.NoError(t, err)
		assert.True(t, stored.IsSynced())
	})

	t.Run("coordinates from the location source are stored", func(t *testing.T) {
		lat, lng := 52.52, 13.405
		env := setupCaptureFlow(t, func(deps *CaptureFlowDeps) {
			deps.Location = &fakeLocation{lat: &lat, lng: &lng}
		})

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, StateSuccess, outcome.State)

		stored, err := env.queue.GetByID(ctx, outcome.RecordID)
		require.NoError(t, err)
		require.True(t, stored.HasCoordinates())
		assert.InDelta(t, lat, *stored.Latitude, 0.0001)
		assert.InDelta(t, lng, *stored.Longitude, 0.0001)
	})

	t.Run("missing fix degrades to no coordinates", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, StateSuccess, outcome.State)

		stored, err := env.queue.GetByID(ctx, outcome.RecordID)
		require.NoError(t, err)
		assert.False(t, stored.HasCoordinates())
	})

	t.Run("camera unavailable surfaces its cause and queues nothing", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)
		env.camera.acquireErr = errors.New("permission denied")

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, StateError, outcome.State)
		assert.Equal(t, CauseCameraUnavailable, outcome.Cause)

		pending, err := env.queue.CountPending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
	})

	t.Run("still failure releases the camera and queues nothing", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)
		env.session.stillErr = errors.New("no frame available")

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, StateError, outcome.State)
		assert.Equal(t, CauseCaptureFailed, outcome.Cause)
		assert.Equal(t, 1, env.session.releases)

		pending, err := env.queue.CountPending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
	})

	t.Run("undecodable frame is a capture failure", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)
		env.session.frame = []byte("not an image")

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, StateError, outcome.State)
		assert.Equal(t, CauseCaptureFailed, outcome.Cause)
		assert.Equal(t, 1, env.session.releases)
	})

	t.Run("transport failure leaves the record queued", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)
		env.verifier.failAll(ErrUnconfirmed)

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, StateError, outcome.State)
		assert.Equal(t, CausePendingConfirmation, outcome.Cause)
		require.NotEmpty(t, outcome.RecordID)

		stored, err := env.queue.GetByID(ctx, outcome.RecordID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.False(t, stored.IsSynced())
		assert.Equal(t, 1, env.session.releases)
	})

	t.Run("rejected verdict is terminal and marks the record synced", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)
		env.verifier.verdictAll(models.VerdictRejected)

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, StateError, outcome.State)
		assert.Equal(t, CauseRejected, outcome.Cause)
		require.NotEmpty(t, outcome.RecordID)

		stored, err := env.queue.GetByID(ctx, outcome.RecordID)
		require.NoError(t, err)
		assert.True(t, stored.IsSynced())
	})

	t.Run("enqueue callback fires after the queue write", func(t *testing.T) {
		fired := 0
		env := setupCaptureFlow(t, func(deps *CaptureFlowDeps) {
			deps.OnEnqueued = func() { fired++ }
		})

		_, err := env.flow.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, fired)
	})

	t.Run("second run on the same flow is refused", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)

		_, err := env.flow.Run(ctx)
		require.NoError(t, err)

		_, err = env.flow.Run(ctx)
		assert.ErrorIs(t, err, ErrFlowAlreadyRunning)
	})
}

func TestCaptureFlowRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("error state retries from the camera", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)
		env.camera.acquireErr = errors.New("camera busy")

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, StateError, outcome.State)

		env.camera.acquireErr = nil
		outcome, err = env.flow.Retry(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateSuccess, outcome.State)
	})

	t.Run("retry outside the error state is refused", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)

		_, err := env.flow.Retry(ctx)
		assert.ErrorIs(t, err, ErrFlowNotRetryable)
	})
}

func TestCaptureFlowDismiss(t *testing.T) {
	ctx := context.Background()

	t.Run("dismiss before starting", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)
		assert.NoError(t, env.flow.Dismiss())
	})

	t.Run("dismiss after success keeps the synced record", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)

		outcome, err := env.flow.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, StateSuccess, outcome.State)

		require.NoError(t, env.flow.Dismiss())

		stored, err := env.queue.GetByID(ctx, outcome.RecordID)
		require.NoError(t, err)
		assert.NotNil(t, stored)
	})

	t.Run("dismiss mid-attempt is refused", func(t *testing.T) {
		env := setupCaptureFlow(t, nil)
		require.NoError(t, env.flow.Dismiss())
		assert.ErrorIs(t, env.flow.Dismiss(), ErrFlowNotDismissable)
	})
}
