// Package notify abstracts the user-facing notification surface (the toast
// layer in a browser client). The error manager and TTS watchdog publish
// through a Notifier; the CLI ships a slog-backed implementation.
package notify

import (
	"log/slog"
	"time"
)

// Level orders notifications by urgency.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelCritical
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	default:
		return "info"
	}
}

// Notice is a single user-facing message.
type Notice struct {
	Level   Level
	Title   string
	Message string

	// Duration the notice stays visible. Zero means sticky: the notice
	// persists until the user dismisses it.
	Duration time.Duration

	// Guidance lists self-service recovery steps, shown under the message.
	Guidance []string
}

// DurationFor maps a level to the display duration used when a Notice does
// not set one: 3s/5s/8s, and sticky for critical.
func DurationFor(l Level) time.Duration {
	switch l {
	case LevelInfo:
		return 3 * time.Second
	case LevelWarning:
		return 5 * time.Second
	case LevelError:
		return 8 * time.Second
	default:
		return 0
	}
}

// Notifier delivers notices to the user. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(n Notice)
}

// Log is a Notifier that writes notices through slog. The default surface
// for the CLI client.
type Log struct {
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

// Notify writes the notice at a log level matching its urgency.
func (l *Log) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"title", n.Title}
	if len(n.Guidance) > 0 {
		attrs = append(attrs, "guidance", n.Guidance)
	}

	switch n.Level {
	case LevelInfo:
		logger.Info(n.Message, attrs...)
	case LevelWarning:
		logger.Warn(n.Message, attrs...)
	default:
		logger.Error(n.Message, attrs...)
	}
}

// Func adapts a function to the Notifier interface.
type Func func(Notice)

// Notify calls f.
func (f Func) Notify(n Notice) { f(n) }
