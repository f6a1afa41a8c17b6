package store_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxlink/voxlink/internal/api"
	"github.com/voxlink/voxlink/internal/store"
	"github.com/voxlink/voxlink/pkg/voice"
)

func TestChatStore_StreamingLifecycle(t *testing.T) {
	s := store.NewChatStore()
	var notifications int
	unsub := s.Subscribe(func() { notifications++ })
	defer unsub()

	s.SetStreaming(voice.Message{ID: "m1", Role: voice.RoleAssistant, Text: "Hel"})
	s.SetStreaming(voice.Message{ID: "m1", Role: voice.RoleAssistant, Text: "Hello"})

	if msg, ok := s.Streaming(); !ok || msg.Text != "Hello" {
		t.Fatalf("streaming = %+v, %v", msg, ok)
	}
	if len(s.Messages()) != 0 {
		t.Fatal("streaming message leaked into the transcript")
	}

	s.CompleteStreaming(voice.Message{ID: "m1", Role: voice.RoleAssistant, Text: "Hello, world"})

	if _, ok := s.Streaming(); ok {
		t.Error("streaming message still open after completion")
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Text != "Hello, world" {
		t.Errorf("transcript = %+v", msgs)
	}
	if notifications != 3 {
		t.Errorf("notifications = %d, want 3", notifications)
	}
}

func TestChatStore_UnsubscribeStopsNotifications(t *testing.T) {
	s := store.NewChatStore()
	var notifications int
	unsub := s.Subscribe(func() { notifications++ })

	s.Append(voice.Message{ID: "a"})
	unsub()
	s.Append(voice.Message{ID: "b"})

	if notifications != 1 {
		t.Errorf("notifications = %d, want 1", notifications)
	}
}

func TestChatStore_LoadHistoryPrependsOldestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				// Newest first, as the backend serves it.
				"records": []map[string]any{
					{"id": 2, "appId": 7, "messageType": "ai", "message": "old reply"},
					{"id": 1, "appId": 7, "messageType": "user", "message": "old question"},
				},
				"total": 2,
			},
		})
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	s := store.NewChatStore()
	s.Append(voice.Message{ID: "live", Role: voice.RoleUser, Text: "new question"})

	if err := s.LoadHistory(context.Background(), client, 7, 1, 10); err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}

	msgs := s.Messages()
	wantTexts := []string{"old question", "old reply", "new question"}
	if len(msgs) != len(wantTexts) {
		t.Fatalf("transcript length = %d, want %d", len(msgs), len(wantTexts))
	}
	for i, want := range wantTexts {
		if msgs[i].Text != want {
			t.Errorf("message %d = %q, want %q", i, msgs[i].Text, want)
		}
	}
	if msgs[0].Role != voice.RoleUser || msgs[1].Role != voice.RoleAssistant {
		t.Error("history roles mapped incorrectly")
	}
}

func TestChatStore_Clear(t *testing.T) {
	s := store.NewChatStore()
	s.Append(voice.Message{ID: "a"})
	s.SetStreaming(voice.Message{ID: "b"})
	s.Clear()

	if len(s.Messages()) != 0 {
		t.Error("transcript not cleared")
	}
	if _, ok := s.Streaming(); ok {
		t.Error("streaming message not cleared")
	}
}

func TestConnectionStore_DegradedTracking(t *testing.T) {
	s := store.NewConnectionStore()
	var notifications int
	unsub := s.Subscribe(func() { notifications++ })
	defer unsub()

	if s.Get(store.ChannelAudio) != voice.StateDisconnected {
		t.Error("untracked channel is not disconnected")
	}
	if s.Degraded() {
		t.Error("fresh store reports degraded")
	}

	s.Set(store.ChannelAudio, voice.StateConnected)
	s.Set(store.ChannelText, voice.StateError)

	if !s.Degraded() {
		t.Error("error on one channel must mark the store degraded")
	}
	if s.Get(store.ChannelAudio) != voice.StateConnected {
		t.Error("audio channel state lost")
	}

	s.Set(store.ChannelText, voice.StateConnected)
	if s.Degraded() {
		t.Error("recovered store still degraded")
	}
	if notifications != 3 {
		t.Errorf("notifications = %d, want 3", notifications)
	}
}
