// Package errmgr is the central error classifier and retry engine for the
// voxlink client. Transport and audio failures are caught at their origin,
// wrapped into a classified AppError, and handed to a Manager rather than allowed
// to cross an async boundary unhandled. The Manager notifies the user,
// retries the recoverable classes with exponential backoff, and runs a
// registered fallback once retries are exhausted.
package errmgr

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Type is the flat error taxonomy. Values match the wire-level identifiers
// used in diagnostics and metrics attributes.
type Type string

const (
	TypeNetwork          Type = "network_error"
	TypePermissionDenied Type = "permission_denied"
	TypeAudioContext     Type = "audio_context_error"
	TypeWebSocket        Type = "websocket_error"
	TypeSSE              Type = "sse_error"
	TypeSessionTimeout   Type = "session_timeout"
	TypeTTSTimeout       Type = "tts_timeout"
	TypeMicrophone       Type = "microphone_error"
	TypeAudioPlayback    Type = "audio_playback_error"
	TypeConnectionLost   Type = "connection_lost"
)

// Retryable reports whether the type is in the curated retry-eligible set.
// Eligibility is a property of the type, not of severity: permission and
// device errors are never auto-retried regardless of how they are classified.
func (t Type) Retryable() bool {
	switch t {
	case TypeNetwork, TypeWebSocket, TypeSSE, TypeConnectionLost, TypeSessionTimeout:
		return true
	}
	return false
}

// Severity orders errors for presentation. It affects toast duration and
// styling only, never retry eligibility.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "critical"
	}
}

// AppError is a classified error. Immutable once created; consumed by the
// Manager and discarded.
type AppError struct {
	Type      Type
	Message   string
	Severity  Severity
	Timestamp time.Time
	Details   map[string]any
	Stack     []byte
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// New classifies an error condition into an AppError, capturing the call
// stack at the classification site.
func New(t Type, message string, severity Severity, details map[string]any) *AppError {
	return &AppError{
		Type:      t,
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now(),
		Details:   details,
		Stack:     debug.Stack(),
	}
}

// Wrap classifies an underlying error, recording it in the details map.
func Wrap(t Type, err error, severity Severity) *AppError {
	return New(t, err.Error(), severity, map[string]any{"cause": err})
}
