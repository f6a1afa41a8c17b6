package errmgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxlink/voxlink/internal/notify"
	"github.com/voxlink/voxlink/pkg/retry"
)

// Handler is the registered response for one error type.
type Handler struct {
	// Message is the default user-facing description.
	Message string

	// Severity is the presentation severity for this type.
	Severity Severity

	// Retry, when set on a retry-eligible type, is scheduled with backoff.
	Retry func(ctx context.Context) error

	// Fallback runs once retries are exhausted, or immediately when the
	// type is not retry-eligible and Retry is unset.
	Fallback func()

	// Guidance lists self-service recovery steps shown to the user.
	Guidance []string
}

// Manager routes classified errors to their handlers and owns the per-type
// retry counters. Safe for concurrent use.
type Manager struct {
	notifier notify.Notifier
	backoff  retry.Config
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[Type]Handler
	attempts map[Type]int
}

// Option configures a Manager during construction.
type Option func(*Manager)

// WithBackoff overrides the retry policy (default: retry.DefaultConfig).
func WithBackoff(cfg retry.Config) Option {
	return func(m *Manager) { m.backoff = cfg }
}

// WithLogger overrides the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager publishing through notifier, with the default
// handler table registered for every type in the taxonomy.
func NewManager(notifier notify.Notifier, opts ...Option) *Manager {
	m := &Manager{
		notifier: notifier,
		backoff:  retry.DefaultConfig,
		handlers: make(map[Type]Handler),
		attempts: make(map[Type]int),
	}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.registerDefaults()
	return m
}

// Register installs or replaces the handler for an error type. Callers
// typically re-register a default entry with Retry/Fallback actions bound to
// live components.
func (m *Manager) Register(t Type, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[t] = h
}

// Handle routes a classified error: log, notify, then retry or fall back.
// Retries are scheduled asynchronously; Handle returns once the error is
// dispatched.
func (m *Manager) Handle(ctx context.Context, e *AppError) {
	m.logger.Error("pipeline error",
		"type", string(e.Type),
		"severity", e.Severity.String(),
		"msg", e.Message,
	)

	m.mu.Lock()
	h, ok := m.handlers[e.Type]
	m.mu.Unlock()

	if !ok {
		m.notifier.Notify(notify.Notice{
			Level:    notify.LevelError,
			Title:    "Unexpected error",
			Message:  e.Message,
			Duration: notify.DurationFor(notify.LevelError),
		})
		return
	}

	m.notifier.Notify(noticeFor(h, e))

	if h.Retry != nil && e.Type.Retryable() && m.underLimit(e.Type) {
		m.scheduleRetry(ctx, e.Type, h)
		return
	}
	if h.Fallback != nil {
		h.Fallback()
	}
}

// RetryCount returns the current attempt count for an error type.
func (m *Manager) RetryCount(t Type) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[t]
}

// ResetRetryCount clears the attempt counter for an error type, re-enabling
// automatic retries after an exhaustion.
func (m *Manager) ResetRetryCount(t Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, t)
}

func (m *Manager) underLimit(t Type) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[t] < m.backoff.MaxRetries
}

// scheduleRetry arms a one-shot timer for the next attempt. On success the
// counter resets; on failure it either reschedules or, once the limit is
// reached, runs the fallback.
func (m *Manager) scheduleRetry(ctx context.Context, t Type, h Handler) {
	m.mu.Lock()
	count := m.attempts[t]
	m.attempts[t] = count + 1
	m.mu.Unlock()

	delay := m.backoff.Delay(count)
	m.logger.Info("scheduling retry",
		"type", string(t),
		"attempt", count+1,
		"delay", delay,
	)

	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		err := h.Retry(ctx)
		if err == nil {
			m.ResetRetryCount(t)
			return
		}
		m.logger.Warn("retry failed", "type", string(t), "err", err)
		if m.underLimit(t) {
			m.scheduleRetry(ctx, t, h)
			return
		}
		if h.Fallback != nil {
			h.Fallback()
		}
	})
}

func noticeFor(h Handler, e *AppError) notify.Notice {
	level := levelFor(h.Severity)
	return notify.Notice{
		Level:    level,
		Title:    string(e.Type),
		Message:  h.Message,
		Duration: notify.DurationFor(level),
		Guidance: h.Guidance,
	}
}

func levelFor(s Severity) notify.Level {
	switch s {
	case SeverityLow:
		return notify.LevelInfo
	case SeverityMedium:
		return notify.LevelWarning
	case SeverityHigh:
		return notify.LevelError
	default:
		return notify.LevelCritical
	}
}

// registerDefaults installs the stock handler table. Entries carry messages
// and guidance only; callers bind Retry/Fallback actions by re-registering.
func (m *Manager) registerDefaults() {
	defaults := map[Type]Handler{
		TypeNetwork: {
			Message:  "Network connection failed",
			Severity: SeverityHigh,
			Guidance: []string{"Check your network connection and try again"},
		},
		TypePermissionDenied: {
			Message:  "Microphone permission is required for voice chat",
			Severity: SeverityHigh,
			Guidance: []string{"Allow microphone access in your browser settings, then reload the page"},
		},
		TypeWebSocket: {
			Message:  "Voice channel connection failed",
			Severity: SeverityHigh,
			Guidance: []string{"Could not reach the server, please retry shortly"},
		},
		TypeSSE: {
			Message:  "Text stream connection failed",
			Severity: SeverityMedium,
			Guidance: []string{"Text delivery is degraded, reconnecting"},
		},
		TypeTTSTimeout: {
			Message:  "Speech synthesis timed out",
			Severity: SeverityMedium,
			Guidance: []string{"Voice output is slow, replies will be shown as text"},
		},
		TypeAudioContext: {
			Message:  "Audio system initialisation failed",
			Severity: SeverityHigh,
			Guidance: []string{"Audio is unavailable, reload the page to retry"},
		},
		TypeSessionTimeout: {
			Message:  "Session expired",
			Severity: SeverityMedium,
			Guidance: []string{"The session timed out, start a new conversation"},
		},
		TypeConnectionLost: {
			Message:  "Connection lost",
			Severity: SeverityHigh,
			Guidance: []string{"The connection dropped, reconnecting"},
		},
		TypeMicrophone: {
			Message:  "Microphone device error",
			Severity: SeverityHigh,
			Guidance: []string{"Check that a microphone is connected and not in use by another application"},
		},
		TypeAudioPlayback: {
			Message:  "Audio playback failed",
			Severity: SeverityMedium,
			Guidance: []string{"Voice output failed for this reply, text is still available"},
		},
	}
	for t, h := range defaults {
		m.handlers[t] = h
	}
}
