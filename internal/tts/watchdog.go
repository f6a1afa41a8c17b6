// Package tts guards text-to-speech delivery with per-request timeout
// watchdogs and a text-only fallback mode.
//
// Every outstanding TTS request is tracked by ID. When a request is not
// answered within the timeout it counts as a strike; after enough strikes the
// watchdog switches to fallback mode and probes the backend in the background
// until audio delivery recovers.
package tts

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxlink/voxlink/internal/errmgr"
	"github.com/voxlink/voxlink/pkg/retry"
)

const (
	// DefaultTimeout is how long a TTS request may stay unanswered.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxTimeouts is the strike count that activates fallback mode.
	DefaultMaxTimeouts = 3

	// DefaultProbeInterval is the pause between recovery probes while in
	// fallback mode.
	DefaultProbeInterval = 60 * time.Second
)

// Watchdog tracks outstanding TTS requests and downgrades to text-only mode
// when the audio path stops responding. Safe for concurrent use.
type Watchdog struct {
	timeout       time.Duration
	maxTimeouts   int
	probeInterval time.Duration
	probeURL      string
	client        *http.Client
	logger        *slog.Logger

	onError    func(*errmgr.AppError)
	onFallback func(active bool)

	mu       sync.Mutex
	timers   map[string]*time.Timer
	strikes  int
	fallback bool

	closed    chan struct{}
	closeOnce sync.Once
}

// Option customises a Watchdog.
type Option func(*Watchdog)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Watchdog) { w.timeout = d }
}

// WithMaxTimeouts overrides the strike count that triggers fallback.
func WithMaxTimeouts(n int) Option {
	return func(w *Watchdog) { w.maxTimeouts = n }
}

// WithProbeInterval overrides the recovery probe interval.
func WithProbeInterval(d time.Duration) Option {
	return func(w *Watchdog) { w.probeInterval = d }
}

// WithHTTPClient overrides the client used for recovery probes.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Watchdog) { w.client = c }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watchdog) { w.logger = l }
}

// WithFallbackHook registers a callback invoked on every fallback mode
// transition.
func WithFallbackHook(fn func(active bool)) Option {
	return func(w *Watchdog) { w.onFallback = fn }
}

// NewWatchdog creates a Watchdog probing probeURL for recovery. onError
// receives a tts_timeout error for every expired request; it may be nil.
func NewWatchdog(probeURL string, onError func(*errmgr.AppError), opts ...Option) *Watchdog {
	w := &Watchdog{
		timeout:       DefaultTimeout,
		maxTimeouts:   DefaultMaxTimeouts,
		probeInterval: DefaultProbeInterval,
		probeURL:      probeURL,
		client:        http.DefaultClient,
		logger:        slog.Default(),
		onError:       onError,
		timers:        make(map[string]*time.Timer),
		closed:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewRequestID returns a fresh TTS request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// Watch arms a timeout timer for the given request ID. Watching an ID that
// is already tracked rearms its timer.
func (w *Watchdog) Watch(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[id]; ok {
		t.Stop()
	}
	w.timers[id] = time.AfterFunc(w.timeout, func() { w.expire(id) })
}

// Done marks the request as answered and cancels its timer. Unknown IDs are
// ignored.
func (w *Watchdog) Done(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[id]; ok {
		t.Stop()
		delete(w.timers, id)
	}
}

// FallbackActive reports whether text-only fallback mode is active.
func (w *Watchdog) FallbackActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fallback
}

// Timeouts returns the current strike count.
func (w *Watchdog) Timeouts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.strikes
}

// Close cancels all timers and stops the recovery probe.
func (w *Watchdog) Close() {
	w.closeOnce.Do(func() { close(w.closed) })
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

func (w *Watchdog) expire(id string) {
	w.mu.Lock()
	if _, ok := w.timers[id]; !ok {
		w.mu.Unlock()
		return
	}
	delete(w.timers, id)
	w.strikes++
	strikes := w.strikes
	enterFallback := !w.fallback && strikes >= w.maxTimeouts
	if enterFallback {
		w.fallback = true
	}
	w.mu.Unlock()

	w.logger.Warn("tts request timed out", "request_id", id, "strikes", strikes)
	if w.onError != nil {
		w.onError(errmgr.New(errmgr.TypeTTSTimeout, "voice reply timed out", errmgr.SeverityMedium,
			map[string]any{"request_id": id, "strikes": strikes}))
	}
	if enterFallback {
		w.logger.Warn("switching to text-only fallback mode")
		if w.onFallback != nil {
			w.onFallback(true)
		}
		go w.probeLoop()
	}
}

// probeLoop checks backend reachability until recovery or Close.
func (w *Watchdog) probeLoop() {
	ticker := time.NewTicker(w.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.closed:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.probeInterval)
			ok := retry.CheckReachability(ctx, w.client, w.probeURL)
			cancel()
			if !ok {
				continue
			}
			w.recover()
			return
		}
	}
}

func (w *Watchdog) recover() {
	w.mu.Lock()
	w.fallback = false
	w.strikes = 0
	w.mu.Unlock()

	w.logger.Info("voice delivery recovered, leaving fallback mode")
	if w.onFallback != nil {
		w.onFallback(false)
	}
}
