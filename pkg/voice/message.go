// Package voice implements the real-time voice transport: a WebSocket session
// that streams PCM frames to the backend and demultiplexes the tagged reply
// stream (text fragments, recognition results, TTS audio) into callbacks, a
// debounced assembler that turns reply fragments into finished messages, a
// serialized playback queue for TTS audio, and a recorder that drives capture
// through voice-activity detection.
package voice

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a finished chat message. Immutable once emitted.
type Message struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time
}

// newMessage creates a message with a fresh ID, stamped now.
func newMessage(role Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}
