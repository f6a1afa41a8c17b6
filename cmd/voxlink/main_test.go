package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxlink/voxlink/internal/errmgr"
	"github.com/voxlink/voxlink/internal/tts"
	"github.com/voxlink/voxlink/pkg/voice"
)

func TestLiveSession_ReconnectBuildsFreshSession(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	dog := tts.NewWatchdog(srv.URL, func(*errmgr.AppError) {})
	defer dog.Close()

	live := &liveSession{
		appID: "7",
		dog:   dog,
		build: func() *voice.Session {
			return voice.NewSession(voice.SessionConfig{URL: srv.URL, Keepalive: -1})
		},
	}

	ctx := context.Background()
	if err := live.connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	first := live.current()

	if err := live.connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer live.disconnect(ctx)

	if live.current() == first {
		t.Error("reconnect did not replace the session")
	}
	if got := dials.Load(); got != 2 {
		t.Errorf("server saw %d connections, want 2", got)
	}
	if first.State() != voice.StateDisconnected {
		t.Errorf("previous session state = %v, want disconnected", first.State())
	}
	if err := live.SendFrame(ctx, []byte{0, 0}, "speech"); err != nil {
		t.Errorf("send after reconnect: %v", err)
	}
}

func TestLiveSession_SegmentEndArmsWatchdog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	errs := make(chan *errmgr.AppError, 1)
	dog := tts.NewWatchdog(srv.URL, func(e *errmgr.AppError) { errs <- e },
		tts.WithTimeout(10*time.Millisecond),
	)
	defer dog.Close()

	live := &liveSession{
		appID: "7",
		dog:   dog,
		build: func() *voice.Session {
			return voice.NewSession(voice.SessionConfig{URL: srv.URL, Keepalive: -1})
		},
	}
	ctx := context.Background()
	if err := live.connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer live.disconnect(ctx)

	if err := live.SendSegmentEnd(ctx); err != nil {
		t.Fatalf("SendSegmentEnd: %v", err)
	}
	select {
	case e := <-errs:
		if e.Type != errmgr.TypeTTSTimeout {
			t.Errorf("error type = %q, want %q", e.Type, errmgr.TypeTTSTimeout)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired after an unanswered segment end")
	}
}
