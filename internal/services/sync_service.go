package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/presencesync/agent/internal/observability"
	"github.com/presencesync/agent/internal/repository"
)

// DrainResult is the outcome of one drain pass over the pending queue
type DrainResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Deleted   int `json:"deleted"`
}

// SyncEngineStatus reports the engine's recent activity
type SyncEngineStatus struct {
	LastRun          time.Time   `json:"lastRun,omitempty"`
	LastRunDuration  string      `json:"lastRunDuration,omitempty"`
	LastResult       DrainResult `json:"lastResult"`
	NextScheduledRun time.Time   `json:"nextScheduledRun,omitempty"`
}

// SyncService drains pending capture records to the verification
// service and prunes old synced records. Drain passes are safe to run
// concurrently: correctness relies on MarkSynced being idempotent and on
// each pass taking a fresh pending snapshot, not on mutual exclusion.
type SyncService struct {
	queue     repository.QueueRepo
	verifier  Verifier
	retention time.Duration
	interval  time.Duration
	hub       *EventHub
	metrics   *observability.SyncMetrics

	mu       sync.RWMutex
	status   SyncEngineStatus
	ticker   *time.Ticker
	stopChan chan struct{}

	subMu   sync.Mutex
	subs    map[int]func(DrainResult)
	nextSub int
}

// NewSyncService creates a new SyncService
func NewSyncService(queue repository.QueueRepo, verifier Verifier, retentionDays, intervalMinutes int) *SyncService {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if intervalMinutes <= 0 {
		intervalMinutes = 60
	}

	return &SyncService{
		queue:     queue,
		verifier:  verifier,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  time.Duration(intervalMinutes) * time.Minute,
		subs:      make(map[int]func(DrainResult)),
	}
}

// SetEventHub sets the hub for drain result notifications
func (s *SyncService) SetEventHub(hub *EventHub) {
	s.hub = hub
}

// SetMetrics sets the metrics instruments for drain passes
func (s *SyncService) SetMetrics(metrics *observability.SyncMetrics) {
	s.metrics = metrics
}

// Subscribe registers a handler called synchronously after every drain
// pass. The returned function removes the subscription.
func (s *SyncService) Subscribe(handler func(DrainResult)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = handler

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// DrainPending submits every pending record to the verification service.
// Any confirmed verdict, including rejected, marks the record synced; a
// transport failure leaves it pending for a later pass and never aborts
// the batch. Afterwards old synced records past the retention window are
// pruned as routine housekeeping.
func (s *SyncService) DrainPending(ctx context.Context) DrainResult {
	ctx, span := observability.StartServiceSpan(ctx, "SyncService", "DrainPending")
	defer span.End()

	logger := observability.WithContext(ctx)
	start := time.Now()
	var result DrainResult

	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		observability.RecordError(span, err)
		logger.Errorf("Drain pass could not list pending records: %v", err)
		s.finishPass(ctx, start, result)
		return result
	}

	for _, record := range pending {
		verification, err := s.verifier.Verify(ctx, record)
		if err != nil {
			result.Failed++
			if errors.Is(err, ErrUnconfirmed) {
				logger.WithField("record_id", record.ID).
					Infof("Submission unconfirmed, record stays pending: %v", err)
			} else {
				logger.WithField("record_id", record.ID).
					Errorf("Submission failed, record stays pending: %v", err)
			}
			continue
		}

		if err := s.queue.MarkSynced(ctx, record.ID); err != nil {
			// The service confirmed this record but the local mark
			// failed; it stays pending and the next pass resubmits it.
			// At-least-once, never silent loss.
			result.Failed++
			logger.WithField("record_id", record.ID).
				Errorf("Failed to mark record synced: %v", err)
			continue
		}

		result.Succeeded++
		logger.WithFields(map[string]interface{}{
			"record_id": record.ID,
			"verdict":   string(verification.Verdict),
		}).Info("Record synced")
	}

	deleted, err := s.queue.DeleteSyncedBefore(ctx, time.Now().UTC().Add(-s.retention))
	if err != nil {
		logger.Errorf("Cleanup pass failed: %v", err)
	} else if deleted > 0 {
		result.Deleted = deleted
		logger.Infof("Cleanup removed %d synced records past retention", deleted)
	}

	s.finishPass(ctx, start, result)
	return result
}

func (s *SyncService) finishPass(ctx context.Context, start time.Time, result DrainResult) {
	duration := time.Since(start)

	s.mu.Lock()
	s.status.LastRun = start
	s.status.LastRunDuration = duration.Round(time.Millisecond).String()
	s.status.LastResult = result
	s.mu.Unlock()

	s.metrics.RecordDrain(ctx, result.Succeeded, result.Failed, float64(duration.Milliseconds()))

	if s.hub != nil {
		s.hub.BroadcastToTopic(TopicSync, WSMessage{
			Type: WSTypeSyncResult,
			Payload: SyncResultPayload{
				Succeeded: result.Succeeded,
				Failed:    result.Failed,
				Deleted:   result.Deleted,
				At:        start,
			},
		})
	}

	s.subMu.Lock()
	handlers := make([]func(DrainResult), 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.subMu.Unlock()

	for _, h := range handlers {
		h(result)
	}
}

// Status returns the engine's recent activity
func (s *SyncService) Status() SyncEngineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Start begins the periodic drain loop, the retry backstop for records
// left pending by transport failures
func (s *SyncService) Start() {
	s.mu.Lock()
	if s.ticker != nil {
		s.mu.Unlock()
		return // Already started
	}
	s.stopChan = make(chan struct{})
	s.ticker = time.NewTicker(s.interval)
	s.status.NextScheduledRun = time.Now().Add(s.interval)
	ticker := s.ticker
	stop := s.stopChan
	s.mu.Unlock()

	observability.Infof("Sync engine started (drains every %s)", s.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				s.status.NextScheduledRun = time.Now().Add(s.interval)
				s.mu.Unlock()
				s.DrainPending(context.Background())
			case <-stop:
				observability.Info("Sync engine stopped")
				return
			}
		}
	}()
}

// Stop stops the periodic drain loop
func (s *SyncService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return // Already stopped
	}
	s.ticker.Stop()
	s.ticker = nil
	close(s.stopChan)
}
