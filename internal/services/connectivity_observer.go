package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/presencesync/agent/internal/observability"
)

// ConnectivityProbe reports whether the verification endpoint is
// currently reachable
type ConnectivityProbe interface {
	Online(ctx context.Context) bool
}

// HTTPProbe checks reachability with a HEAD request. Any HTTP response,
// regardless of status, proves the network path is up; only a transport
// error means offline.
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe against the given URL
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProbe{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Online checks reachability of the probe target
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

const initialRetryBackoff = 30 * time.Second

// ConnectivityObserver watches connectivity and triggers drain passes:
// on every offline to online transition, after each enqueue while
// online, and as a re-armed retry when a drain left failures behind.
// Triggers overlap freely; drains are never serialized here because the
// queue's idempotent state transitions make overlapping passes safe, and
// a lock would let triggers pile up behind a slow pass.
type ConnectivityObserver struct {
	probe ConnectivityProbe
	sync  *SyncService

	probeInterval time.Duration
	maxBackoff    time.Duration

	mu          sync.Mutex
	online      bool
	backoff     time.Duration
	retryTimer  *time.Timer
	stopChan    chan struct{}
	ticker      *time.Ticker
	unsubscribe func()
}

// NewConnectivityObserver creates an observer. maxBackoff caps the retry
// re-arm delay; the periodic sync interval is the natural ceiling.
func NewConnectivityObserver(probe ConnectivityProbe, syncService *SyncService, probeIntervalSeconds int, maxBackoff time.Duration) *ConnectivityObserver {
	interval := time.Duration(probeIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = time.Hour
	}

	return &ConnectivityObserver{
		probe:         probe,
		sync:          syncService,
		probeInterval: interval,
		maxBackoff:    maxBackoff,
		backoff:       initialRetryBackoff,
	}
}

// Online reports the last observed connectivity state
func (o *ConnectivityObserver) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// NotifyEnqueued triggers an eager drain when the device is online, so a
// freshly captured record is not needlessly delayed
func (o *ConnectivityObserver) NotifyEnqueued() {
	o.mu.Lock()
	online := o.online
	o.mu.Unlock()

	if online {
		go o.sync.DrainPending(context.Background())
	}
}

// Start begins probing. The first probe runs immediately so the observer
// knows its starting state.
func (o *ConnectivityObserver) Start() {
	o.mu.Lock()
	if o.ticker != nil {
		o.mu.Unlock()
		return // Already started
	}
	o.stopChan = make(chan struct{})
	o.ticker = time.NewTicker(o.probeInterval)
	ticker := o.ticker
	stop := o.stopChan
	o.mu.Unlock()

	o.unsubscribe = o.sync.Subscribe(o.onDrainResult)

	observability.Infof("Connectivity observer started (probes every %s)", o.probeInterval)

	go func() {
		o.checkOnce(context.Background())
		for {
			select {
			case <-ticker.C:
				o.checkOnce(context.Background())
			case <-stop:
				observability.Info("Connectivity observer stopped")
				return
			}
		}
	}()
}

// Stop stops probing and cancels any pending retry
func (o *ConnectivityObserver) Stop() {
	o.mu.Lock()
	if o.ticker == nil {
		o.mu.Unlock()
		return // Already stopped
	}
	o.ticker.Stop()
	o.ticker = nil
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	close(o.stopChan)
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (o *ConnectivityObserver) checkOnce(ctx context.Context) {
	nowOnline := o.probe.Online(ctx)

	o.mu.Lock()
	wasOnline := o.online
	o.online = nowOnline
	o.mu.Unlock()

	if nowOnline && !wasOnline {
		observability.Info("Connectivity restored, draining pending records")
		go o.sync.DrainPending(context.Background())
	} else if !nowOnline && wasOnline {
		observability.Warnf("Connectivity lost")
	}
}

// onDrainResult re-arms a retry after a drain that left failures behind.
// The delay doubles on every consecutive failing drain, capped at
// maxBackoff, and resets as soon as a drain comes back clean.
func (o *ConnectivityObserver) onDrainResult(result DrainResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}

	if result.Failed == 0 {
		o.backoff = initialRetryBackoff
		return
	}

	delay := o.backoff
	o.backoff *= 2
	if o.backoff > o.maxBackoff {
		o.backoff = o.maxBackoff
	}

	if o.stopChan == nil || o.ticker == nil {
		return // Stopped, do not re-arm
	}

	observability.Infof("Drain left %d records pending, retrying in %s", result.Failed, delay)
	o.retryTimer = time.AfterFunc(delay, func() {
		o.sync.DrainPending(context.Background())
	})
}
