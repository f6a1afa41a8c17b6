package voice

import (
	"context"
	"sync"
	"time"

	"github.com/voxlink/voxlink/internal/errmgr"
	"github.com/voxlink/voxlink/internal/observe"
	"github.com/voxlink/voxlink/pkg/audio"
)

// Player renders a TTS audio buffer. Play receives a buffer normalized to a
// playable container; PlayRaw is the fallback path for buffers Play could not
// decode and always receives bare PCM.
type Player interface {
	Play(ctx context.Context, buf []byte) error
	PlayRaw(ctx context.Context, pcm []byte) error
}

// PlaybackQueue serializes TTS playback. Buffers are enqueued in arrival
// order and drained by a single consumer goroutine, so replies never overlap.
// Safe for concurrent use.
type PlaybackQueue struct {
	player     Player
	sampleRate int
	channels   int
	bitDepth   int
	onError    func(*errmgr.AppError)
	metrics    *observe.Metrics

	mu        sync.Mutex
	queue     [][]byte
	isPlaying bool
}

// QueueOption customises a PlaybackQueue.
type QueueOption func(*PlaybackQueue)

// WithQueueErrorSink routes playback failures to the given callback.
func WithQueueErrorSink(fn func(*errmgr.AppError)) QueueOption {
	return func(q *PlaybackQueue) { q.onError = fn }
}

// WithQueueMetrics records queue depth and playback duration.
func WithQueueMetrics(m *observe.Metrics) QueueOption {
	return func(q *PlaybackQueue) { q.metrics = m }
}

// NewPlaybackQueue creates a queue draining into player. The PCM parameters
// describe raw buffers so they can be wrapped into a playable container.
func NewPlaybackQueue(player Player, sampleRate, channels, bitDepth int, opts ...QueueOption) *PlaybackQueue {
	q := &PlaybackQueue{
		player:     player,
		sampleRate: sampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a buffer and starts the consumer if idle.
func (q *PlaybackQueue) Enqueue(buf []byte) {
	if len(buf) == 0 {
		return
	}
	q.mu.Lock()
	q.queue = append(q.queue, buf)
	start := !q.isPlaying
	if start {
		q.isPlaying = true
	}
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.PlaybackQueueDepth.Add(context.Background(), 1)
	}
	if start {
		go q.drain()
	}
}

// Len returns the number of buffers waiting to be played.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Playing reports whether the consumer is active.
func (q *PlaybackQueue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isPlaying
}

func (q *PlaybackQueue) drain() {
	ctx := context.Background()
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.isPlaying = false
			q.mu.Unlock()
			return
		}
		buf := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()

		q.playOne(ctx, buf)
		if q.metrics != nil {
			q.metrics.PlaybackQueueDepth.Add(ctx, -1)
		}
	}
}

// playOne normalizes and plays a single buffer. Decode failures fall back to
// the player's raw path instead of dropping the reply.
func (q *PlaybackQueue) playOne(ctx context.Context, buf []byte) {
	normalized, format := audio.NormalizePlayable(buf, q.sampleRate, q.channels, q.bitDepth)
	if q.metrics != nil {
		q.metrics.RecordTTSBuffer(ctx, format.String())
	}

	start := time.Now()
	err := q.player.Play(ctx, normalized)
	if err != nil {
		err = q.player.PlayRaw(ctx, buf)
	}
	if q.metrics != nil {
		q.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil && q.onError != nil {
		q.onError(errmgr.Wrap(errmgr.TypeAudioPlayback, err, errmgr.SeverityLow))
	}
}
