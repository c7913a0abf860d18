package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/presencesync/agent/internal/models"
	"github.com/presencesync/agent/internal/observability"
	"github.com/presencesync/agent/internal/repository"
)

// CameraSession is an acquired live frame source. It must be released on
// every exit path, including errors, so the hardware is never leaked.
type CameraSession interface {
	Still(ctx context.Context) (data []byte, filename string, err error)
	Release()
}

// CameraSource acquires a camera session for one check-in attempt
type CameraSource interface {
	Acquire(ctx context.Context) (CameraSession, error)
}

// LocationSource produces a best-effort one-shot coordinate fix. Nil
// values mean no fix was obtained within the bounded wait; callers
// proceed without coordinates rather than blocking.
type LocationSource interface {
	Fix(ctx context.Context) (lat, lng *float64)
}

// CaptureState is a phase of the interactive check-in flow
type CaptureState string

const (
	StateInstructions CaptureState = "instructions"
	StateCamera       CaptureState = "camera"
	StateLocation     CaptureState = "location"
	StateSubmitting   CaptureState = "submitting"
	StateSuccess      CaptureState = "success"
	StateError        CaptureState = "error"
	StateClosed       CaptureState = "closed"
)

// Error causes reported alongside StateError. They distinguish "try
// again" from "already queued, will sync automatically" from "rejected".
const (
	CauseCameraUnavailable   = "camera_unavailable"
	CauseCaptureFailed       = "capture_failed"
	CauseQueueWriteFailed    = "queue_write_failed"
	CausePendingConfirmation = "pending_confirmation"
	CauseRejected            = "rejected"
)

// StateChange is published to subscribers on every flow transition
type StateChange struct {
	SessionID string
	State     CaptureState
	Cause     string
	RecordID  string
}

// CaptureOutcome is the terminal result of one check-in attempt
type CaptureOutcome struct {
	State    CaptureState
	Cause    string
	RecordID string
	Result   *models.VerificationResult
}

var (
	ErrFlowNotRetryable   = errors.New("capture flow is not in a retryable state")
	ErrFlowNotDismissable = errors.New("capture flow cannot be dismissed mid-attempt")
	ErrFlowAlreadyRunning = errors.New("capture flow already started")
)

// CaptureFlow drives one check-in attempt through its states. A flow
// instance serves exactly one session; a failed attempt can be retried
// from the camera state, and the enqueued record survives every
// downstream failure.
type CaptureFlow struct {
	sessionID string
	camera    CameraSource
	location  LocationSource
	images    *ImageService
	queue     repository.QueueRepo
	identity  *IdentityService
	verifier  Verifier

	locationTimeout time.Duration
	hub             *EventHub
	metrics         *observability.SyncMetrics
	onEnqueued      func()

	mu       sync.Mutex
	state    CaptureState
	cause    string
	recordID string

	subMu   sync.Mutex
	subs    map[int]func(StateChange)
	nextSub int
}

// CaptureFlowDeps bundles the collaborators a flow needs
type CaptureFlowDeps struct {
	Camera   CameraSource
	Location LocationSource
	Images   *ImageService
	Queue    repository.QueueRepo
	Identity *IdentityService
	Verifier Verifier

	LocationTimeout time.Duration
	Hub             *EventHub
	Metrics         *observability.SyncMetrics
	// OnEnqueued is called after every successful queue write, so the
	// connectivity observer can trigger an eager drain
	OnEnqueued func()
}

// NewCaptureFlow creates a flow for one check-in session, starting at
// the instructions state
func NewCaptureFlow(sessionID string, deps CaptureFlowDeps) *CaptureFlow {
	timeout := deps.LocationTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &CaptureFlow{
		sessionID:       sessionID,
		camera:          deps.Camera,
		location:        deps.Location,
		images:          deps.Images,
		queue:           deps.Queue,
		identity:        deps.Identity,
		verifier:        deps.Verifier,
		locationTimeout: timeout,
		hub:             deps.Hub,
		metrics:         deps.Metrics,
		onEnqueued:      deps.OnEnqueued,
		state:           StateInstructions,
		subs:            make(map[int]func(StateChange)),
	}
}

// State returns the flow's current state and cause
func (f *CaptureFlow) State() (CaptureState, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.cause
}

// Subscribe registers a handler called synchronously on every state
// change. The returned function removes the subscription.
func (f *CaptureFlow) Subscribe(handler func(StateChange)) func() {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	id := f.nextSub
	f.nextSub++
	f.subs[id] = handler

	return func() {
		f.subMu.Lock()
		defer f.subMu.Unlock()
		delete(f.subs, id)
	}
}

// Run executes the attempt from the instructions state through to a
// terminal success or error
func (f *CaptureFlow) Run(ctx context.Context) (*CaptureOutcome, error) {
	f.mu.Lock()
	if f.state != StateInstructions {
		f.mu.Unlock()
		return nil, ErrFlowAlreadyRunning
	}
	f.mu.Unlock()

	return f.attempt(ctx), nil
}

// Retry re-enters the flow from the camera state after an error
func (f *CaptureFlow) Retry(ctx context.Context) (*CaptureOutcome, error) {
	f.mu.Lock()
	if f.state != StateError {
		f.mu.Unlock()
		return nil, ErrFlowNotRetryable
	}
	f.mu.Unlock()

	return f.attempt(ctx), nil
}

// Dismiss closes the flow. Allowed only from instructions and the
// terminal states; anything already queued stays queued.
func (f *CaptureFlow) Dismiss() error {
	f.mu.Lock()
	switch f.state {
	case StateInstructions, StateSuccess, StateError:
		f.mu.Unlock()
		f.transition(StateClosed, "", "")
		return nil
	default:
		f.mu.Unlock()
		return ErrFlowNotDismissable
	}
}

func (f *CaptureFlow) attempt(ctx context.Context) *CaptureOutcome {
	ctx, span := observability.StartServiceSpan(ctx, "CaptureFlow", "attempt")
	defer span.End()

	logger := observability.WithContext(ctx).WithField("session_id", f.sessionID)

	f.transition(StateCamera, "", "")
	session, err := f.camera.Acquire(ctx)
	if err != nil {
		logger.Warnf("Camera unavailable: %v", err)
		return f.fail(nil, CauseCameraUnavailable)
	}

	// Released exactly once, on whichever path exits first
	released := false
	release := func() {
		if !released {
			released = true
			session.Release()
		}
	}
	defer release()

	f.transition(StateLocation, "", "")
	lat, lng := f.boundedFix(ctx)

	// The still is taken at the moment the flow leaves the location
	// state, not earlier
	data, filename, err := session.Still(ctx)
	if err != nil {
		logger.Warnf("Still capture failed: %v", err)
		return f.fail(release, CauseCaptureFailed)
	}

	still, err := f.images.NormalizeStill(data, filename)
	if err != nil {
		logger.Warnf("Frame unusable: %v", err)
		return f.fail(release, CauseCaptureFailed)
	}

	// EXIF GPS fills in only when the location source produced nothing
	if lat == nil && still.Latitude != nil && still.Longitude != nil {
		lat, lng = still.Latitude, still.Longitude
	}

	deviceID, err := f.identity.DeviceID(ctx)
	if err != nil {
		logger.Errorf("Device identity unavailable: %v", err)
		return f.fail(release, CauseQueueWriteFailed)
	}

	record, err := models.NewCaptureRecord(f.sessionID, still.JPEG, lat, lng, deviceID)
	if err != nil {
		logger.Errorf("Invalid capture record: %v", err)
		return f.fail(release, CauseQueueWriteFailed)
	}

	// The single point of truth: once this write lands, the record
	// exists no matter what happens downstream
	if err := f.queue.Enqueue(ctx, record); err != nil {
		observability.RecordError(span, err)
		logger.Errorf("Queue write failed: %v", err)
		return f.fail(release, CauseQueueWriteFailed)
	}

	f.metrics.RecordCapture(ctx)
	logger.WithField("record_id", record.ID).Info("Capture record enqueued")

	if f.onEnqueued != nil {
		f.onEnqueued()
	}

	// Hardware is freed before the remote round trip
	release()
	f.transition(StateSubmitting, "", record.ID)

	result, err := f.verifier.Verify(ctx, record)
	if err != nil {
		logger.Infof("Immediate confirmation not obtained, record stays queued: %v", err)
		out := f.fail(nil, CausePendingConfirmation)
		out.RecordID = record.ID
		return out
	}

	// Any confirmed verdict is final; mark synced so the engine never
	// resubmits this record
	if err := f.queue.MarkSynced(ctx, record.ID); err != nil {
		logger.Errorf("Failed to mark record synced after verdict: %v", err)
	}

	if result.Verdict == models.VerdictRejected {
		logger.WithField("verdict", string(result.Verdict)).Info("Check-in rejected")
		out := f.fail(nil, CauseRejected)
		out.RecordID = record.ID
		out.Result = result
		return out
	}

	logger.WithField("verdict", string(result.Verdict)).Info("Check-in confirmed")
	f.transition(StateSuccess, "", record.ID)
	return &CaptureOutcome{
		State:    StateSuccess,
		RecordID: record.ID,
		Result:   result,
	}
}

// boundedFix runs the location source under the configured deadline and
// degrades to no coordinates instead of blocking
func (f *CaptureFlow) boundedFix(ctx context.Context) (*float64, *float64) {
	if f.location == nil {
		return nil, nil
	}
	fixCtx, cancel := context.WithTimeout(ctx, f.locationTimeout)
	defer cancel()
	return f.location.Fix(fixCtx)
}

func (f *CaptureFlow) fail(release func(), cause string) *CaptureOutcome {
	if release != nil {
		release()
	}
	f.transition(StateError, cause, "")
	return &CaptureOutcome{State: StateError, Cause: cause}
}

func (f *CaptureFlow) transition(state CaptureState, cause, recordID string) {
	f.mu.Lock()
	f.state = state
	f.cause = cause
	if recordID != "" {
		f.recordID = recordID
	}
	change := StateChange{
		SessionID: f.sessionID,
		State:     state,
		Cause:     cause,
		RecordID:  f.recordID,
	}
	f.mu.Unlock()

	f.subMu.Lock()
	handlers := make([]func(StateChange), 0, len(f.subs))
	for _, h := range f.subs {
		handlers = append(handlers, h)
	}
	f.subMu.Unlock()

	for _, h := range handlers {
		h(change)
	}

	if f.hub != nil {
		f.hub.BroadcastToTopic(TopicCapture, WSMessage{
			Type: WSTypeCaptureState,
			Payload: CaptureStatePayload{
				SessionID: change.SessionID,
				State:     string(change.State),
				Cause:     change.Cause,
				RecordID:  change.RecordID,
			},
		})
	}
}
