// Package store holds the client's observable state: the chat transcript
// with its in-flight streaming message, and the per-channel connection
// health. All mutation goes through explicit methods; observers subscribe
// for change notifications instead of polling shared state.
package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/voxlink/voxlink/internal/api"
	"github.com/voxlink/voxlink/pkg/voice"
)

// ChatStore is the transcript of one conversation. Safe for concurrent use.
type ChatStore struct {
	mu        sync.RWMutex
	messages  []voice.Message
	streaming *voice.Message

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int
}

// NewChatStore creates an empty transcript.
func NewChatStore() *ChatStore {
	return &ChatStore{subs: make(map[int]func())}
}

// Subscribe registers a change observer and returns its unsubscribe
// function. Observers run synchronously on the mutating goroutine and must
// not call back into the store.
func (s *ChatStore) Subscribe(fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *ChatStore) notify() {
	s.subMu.Lock()
	observers := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		observers = append(observers, fn)
	}
	s.subMu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// Append adds a finished message to the transcript.
func (s *ChatStore) Append(msg voice.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

// SetStreaming replaces the in-flight streaming message.
func (s *ChatStore) SetStreaming(msg voice.Message) {
	s.mu.Lock()
	s.streaming = &msg
	s.mu.Unlock()
	s.notify()
}

// CompleteStreaming appends the finished message and clears the in-flight
// one.
func (s *ChatStore) CompleteStreaming(msg voice.Message) {
	s.mu.Lock()
	s.streaming = nil
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

// Streaming returns a copy of the in-flight message, if any.
func (s *ChatStore) Streaming() (voice.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.streaming == nil {
		return voice.Message{}, false
	}
	return *s.streaming, true
}

// Messages returns a snapshot of the transcript.
func (s *ChatStore) Messages() []voice.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]voice.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Clear drops the transcript and any in-flight message.
func (s *ChatStore) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.streaming = nil
	s.mu.Unlock()
	s.notify()
}

// LoadHistory fetches one page of persisted chat turns and prepends them to
// the transcript, oldest first.
func (s *ChatStore) LoadHistory(ctx context.Context, client *api.Client, appID, page, pageSize int64) error {
	hist, err := client.ChatHistory(ctx, appID, page, pageSize)
	if err != nil {
		return err
	}

	// The backend returns newest first.
	loaded := make([]voice.Message, 0, len(hist.Records))
	for i := len(hist.Records) - 1; i >= 0; i-- {
		loaded = append(loaded, historyMessage(hist.Records[i]))
	}

	s.mu.Lock()
	s.messages = append(loaded, s.messages...)
	s.mu.Unlock()
	s.notify()
	return nil
}

// historyMessage converts a persisted chat turn into a transcript message.
func historyMessage(rec api.ChatMessage) voice.Message {
	role := voice.RoleAssistant
	if rec.Role == "user" {
		role = voice.RoleUser
	}
	ts, _ := time.Parse(time.RFC3339, rec.CreateTime)
	return voice.Message{
		ID:        "history-" + strconv.FormatInt(rec.ID, 10),
		Role:      role,
		Text:      rec.Content,
		Timestamp: ts,
	}
}

// Channel names the independent transports whose health is tracked.
type Channel string

const (
	ChannelAudio Channel = "audio"
	ChannelText  Channel = "text"
)

// ConnectionStore tracks per-channel connection states. Safe for concurrent
// use.
type ConnectionStore struct {
	mu     sync.RWMutex
	states map[Channel]voice.State

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int
}

// NewConnectionStore creates a store with every channel disconnected.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{
		states: make(map[Channel]voice.State),
		subs:   make(map[int]func()),
	}
}

// Subscribe registers a change observer and returns its unsubscribe
// function.
func (s *ConnectionStore) Subscribe(fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *ConnectionStore) notify() {
	s.subMu.Lock()
	observers := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		observers = append(observers, fn)
	}
	s.subMu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// Set records the state of one channel.
func (s *ConnectionStore) Set(ch Channel, st voice.State) {
	s.mu.Lock()
	s.states[ch] = st
	s.mu.Unlock()
	s.notify()
}

// Get returns the state of one channel. Untracked channels are disconnected.
func (s *ConnectionStore) Get(ch Channel) voice.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[ch]
}

// Degraded reports whether any tracked channel is in the error state.
func (s *ConnectionStore) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.states {
		if st == voice.StateError {
			return true
		}
	}
	return false
}
