package voice_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxlink/voxlink/internal/errmgr"
	"github.com/voxlink/voxlink/pkg/audio"
	"github.com/voxlink/voxlink/pkg/voice"
)

// fakePlayer records playback calls and can simulate decode failure.
type fakePlayer struct {
	mu       sync.Mutex
	played   [][]byte
	raw      [][]byte
	failPlay bool
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (p *fakePlayer) Play(ctx context.Context, buf []byte) error {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.maxInFlight.Load()
		if n <= old || p.maxInFlight.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(p.delay)
	if p.failPlay {
		return errors.New("unsupported codec")
	}
	p.mu.Lock()
	p.played = append(p.played, buf)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) PlayRaw(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	p.raw = append(p.raw, pcm)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) playedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func TestPlaybackQueue_SerializesBuffers(t *testing.T) {
	player := &fakePlayer{delay: 5 * time.Millisecond}
	q := voice.NewPlaybackQueue(player, 16000, 1, 16)

	buffers := [][]byte{
		audio.EncodeWAV([]byte{1, 1}, 16000, 1, 16),
		audio.EncodeWAV([]byte{2, 2}, 16000, 1, 16),
		audio.EncodeWAV([]byte{3, 3}, 16000, 1, 16),
	}
	for _, b := range buffers {
		q.Enqueue(b)
	}

	waitUntil(t, func() bool { return player.playedCount() == len(buffers) }, "queue never drained")
	waitUntil(t, func() bool { return !q.Playing() }, "consumer never went idle")

	if player.maxInFlight.Load() != 1 {
		t.Errorf("max concurrent playbacks = %d, want 1", player.maxInFlight.Load())
	}
	player.mu.Lock()
	defer player.mu.Unlock()
	for i, want := range buffers {
		if !bytes.Equal(player.played[i], want) {
			t.Errorf("buffer %d played out of order", i)
		}
	}
}

func TestPlaybackQueue_WrapsRawPCM(t *testing.T) {
	player := &fakePlayer{}
	q := voice.NewPlaybackQueue(player, 16000, 1, 16)

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	q.Enqueue(pcm)
	waitUntil(t, func() bool { return player.playedCount() == 1 }, "buffer never played")

	player.mu.Lock()
	defer player.mu.Unlock()
	got := player.played[0]
	if !bytes.HasPrefix(got, []byte("RIFF")) {
		t.Fatal("raw PCM was not wrapped into a playable container")
	}
	if len(got) != 44+len(pcm) {
		t.Errorf("wrapped buffer length = %d, want %d", len(got), 44+len(pcm))
	}
}

func TestPlaybackQueue_DecodeFailureFallsBackToRaw(t *testing.T) {
	player := &fakePlayer{failPlay: true}
	var classified []*errmgr.AppError
	var mu sync.Mutex
	q := voice.NewPlaybackQueue(player, 16000, 1, 16,
		voice.WithQueueErrorSink(func(e *errmgr.AppError) {
			mu.Lock()
			classified = append(classified, e)
			mu.Unlock()
		}),
	)

	pcm := []byte{0x0a, 0x0b}
	q.Enqueue(pcm)
	waitUntil(t, func() bool {
		player.mu.Lock()
		defer player.mu.Unlock()
		return len(player.raw) == 1
	}, "raw fallback never invoked")

	player.mu.Lock()
	if !bytes.Equal(player.raw[0], pcm) {
		t.Error("raw fallback must receive the original buffer, not the wrapped one")
	}
	player.mu.Unlock()

	// The raw path succeeded, so nothing is classified as a playback error.
	mu.Lock()
	defer mu.Unlock()
	if len(classified) != 0 {
		t.Errorf("classified errors = %d, want 0", len(classified))
	}
}

func TestPlaybackQueue_EmptyBufferIgnored(t *testing.T) {
	player := &fakePlayer{}
	q := voice.NewPlaybackQueue(player, 16000, 1, 16)

	q.Enqueue(nil)
	time.Sleep(20 * time.Millisecond)
	if q.Playing() || player.playedCount() != 0 {
		t.Error("empty buffer must not start playback")
	}
}
