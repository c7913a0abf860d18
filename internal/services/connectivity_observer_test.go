package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProbe struct {
	online atomic.Bool
}

func (p *stubProbe) Online(ctx context.Context) bool {
	return p.online.Load()
}

func TestHTTPProbe(t *testing.T) {
	t.Run("any response means online", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusMethodNotAllowed)
		}))
		defer server.Close()

		probe := NewHTTPProbe(server.URL, time.Second)
		assert.True(t, probe.Online(context.Background()))
	})

	t.Run("unreachable target means offline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		probe := NewHTTPProbe(server.URL, time.Second)
		assert.False(t, probe.Online(context.Background()))
	})
}

func TestConnectivityObserverReconnectDrain(t *testing.T) {
	svc, queue, _ := setupSyncTest(t)
	record := enqueueTestRecord(t, queue, "session-reconnect")

	probe := &stubProbe{}
	observer := NewConnectivityObserver(probe, svc, 1, time.Minute)
	observer.Start()
	defer observer.Stop()

	// Starts offline, nothing drains
	time.Sleep(100 * time.Millisecond)
	assert.False(t, observer.Online())

	probe.online.Store(true)

	assert.Eventually(t, func() bool {
		stored, err := queue.GetByID(context.Background(), record.ID)
		require.NoError(t, err)
		return stored.IsSynced()
	}, 5*time.Second, 50*time.Millisecond, "reconnect should drain the pending record")
}

func TestConnectivityObserverNotifyEnqueued(t *testing.T) {
	t.Run("drains immediately while online", func(t *testing.T) {
		svc, queue, _ := setupSyncTest(t)

		probe := &stubProbe{}
		probe.online.Store(true)
		observer := NewConnectivityObserver(probe, svc, 1, time.Minute)
		observer.Start()
		defer observer.Stop()

		assert.Eventually(t, func() bool { return observer.Online() },
			2*time.Second, 20*time.Millisecond)

		record := enqueueTestRecord(t, queue, "session-eager")
		observer.NotifyEnqueued()

		assert.Eventually(t, func() bool {
			stored, err := queue.GetByID(context.Background(), record.ID)
			require.NoError(t, err)
			return stored.IsSynced()
		}, 5*time.Second, 50*time.Millisecond)
	})

	t.Run("stays quiet while offline", func(t *testing.T) {
		svc, queue, _ := setupSyncTest(t)

		probe := &stubProbe{}
		observer := NewConnectivityObserver(probe, svc, 1, time.Minute)
		observer.Start()
		defer observer.Stop()

		record := enqueueTestRecord(t, queue, "session-offline")
		observer.NotifyEnqueued()

		time.Sleep(200 * time.Millisecond)
		stored, err := queue.GetByID(context.Background(), record.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsSynced())
	})
}

func TestConnectivityObserverBackoff(t *testing.T) {
	svc, _, _ := setupSyncTest(t)
	observer := NewConnectivityObserver(&stubProbe{}, svc, 1, 2*time.Minute)

	t.Run("doubles on consecutive failing drains", func(t *testing.T) {
		observer.onDrainResult(DrainResult{Failed: 2})
		observer.mu.Lock()
		assert.Equal(t, time.Minute, observer.backoff)
		observer.mu.Unlock()

		observer.onDrainResult(DrainResult{Failed: 1})
		observer.mu.Lock()
		assert.Equal(t, 2*time.Minute, observer.backoff)
		observer.mu.Unlock()
	})

	t.Run("caps at the configured maximum", func(t *testing.T) {
		observer.onDrainResult(DrainResult{Failed: 1})
		observer.mu.Lock()
		assert.Equal(t, 2*time.Minute, observer.backoff)
		observer.mu.Unlock()
	})

	t.Run("resets after a clean drain", func(t *testing.T) {
		observer.onDrainResult(DrainResult{Failed: 0, Succeeded: 3})
		observer.mu.Lock()
		assert.Equal(t, initialRetryBackoff, observer.backoff)
		observer.mu.Unlock()
	})
}
