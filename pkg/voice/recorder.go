package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/voxlink/voxlink/internal/errmgr"
	"github.com/voxlink/voxlink/pkg/audio"
	"github.com/voxlink/voxlink/pkg/vad"
)

// Source produces capture audio one block at a time. Next blocks until a
// block is available and returns io.EOF when the stream ends.
type Source interface {
	Next(ctx context.Context) ([]float32, error)
	Close() error
}

// FrameSender is the outbound half of a Session, split out so the Recorder
// can be tested without a live connection.
type FrameSender interface {
	SendFrame(ctx context.Context, pcm []byte, kind string) error
	SendSegmentEnd(ctx context.Context) error
	SendEnd(ctx context.Context) error
}

var _ FrameSender = (*Session)(nil)

// Stats counts processed capture blocks.
type Stats struct {
	Total  uint64
	Speech uint64
	Silent uint64
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithVolume registers a per-block volume callback for level meters.
func WithVolume(fn func(volume float64, info string)) RecorderOption {
	return func(r *Recorder) { r.onVolume = fn }
}

// WithRecorderErrorSink routes capture and send failures to the callback.
func WithRecorderErrorSink(fn func(*errmgr.AppError)) RecorderOption {
	return func(r *Recorder) { r.onError = fn }
}

// WithRecorderLogger overrides the logger.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// Recorder drives a capture Source through voice-activity detection and
// frames speech into outbound PCM. One block per iteration: detect, report
// volume, conditionally frame and send, commit the segment end when the
// detector says so.
type Recorder struct {
	source   Source
	sender   FrameSender
	detector *vad.Detector
	chunker  *audio.ChunkProcessor
	logger   *slog.Logger

	onVolume func(float64, string)
	onError  func(*errmgr.AppError)

	recording atomic.Bool

	totalBlocks  atomic.Uint64
	speechBlocks atomic.Uint64
	silentBlocks atomic.Uint64
}

// NewRecorder creates a Recorder. All of source, sender, detector and chunk
// config are required for a useful pipeline.
func NewRecorder(source Source, sender FrameSender, detector *vad.Detector, chunkCfg audio.ChunkConfig, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		source:   source,
		sender:   sender,
		detector: detector,
		chunker:  audio.NewChunkProcessor(chunkCfg),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recording reports whether the capture loop is active.
func (r *Recorder) Recording() bool {
	return r.recording.Load()
}

// Stats returns a snapshot of the block counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Total:  r.totalBlocks.Load(),
		Speech: r.speechBlocks.Load(),
		Silent: r.silentBlocks.Load(),
	}
}

// Run consumes the source until it ends, ctx is cancelled, or Stop is
// called. Run returns nil on a clean end of stream. Calling Run on an
// already running Recorder returns an error.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.recording.CompareAndSwap(false, true) {
		return errors.New("voice: recorder is already running")
	}
	defer r.finish(ctx)

	for r.recording.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		block, err := r.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if r.onError != nil {
				r.onError(errmgr.Wrap(errmgr.TypeMicrophone, err, errmgr.SeverityHigh))
			}
			return err
		}
		r.processBlock(ctx, block)
	}
	return nil
}

// Stop ends the capture loop. The loop's teardown flushes the partial frame
// and announces the end of recording. Safe to call from any goroutine;
// calling Stop on an idle Recorder is a no-op.
func (r *Recorder) Stop() {
	r.recording.Store(false)
}

func (r *Recorder) processBlock(ctx context.Context, block []float32) {
	res := r.detector.ProcessSample(block)
	r.totalBlocks.Add(1)
	if r.onVolume != nil {
		r.onVolume(res.Volume, res.Info)
	}

	if res.ShouldSend {
		r.speechBlocks.Add(1)
		kind := "speech"
		if res.Status != vad.StateSpeech {
			kind = "silence"
		}
		for _, chunk := range r.chunker.Process(block) {
			if err := r.sender.SendFrame(ctx, chunk.Data, kind); err != nil {
				r.logger.Warn("dropping frame", "seq", chunk.Seq, "err", err)
			}
		}
	} else {
		r.silentBlocks.Add(1)
	}

	if res.ShouldStop {
		if chunk, ok := r.chunker.Flush(); ok {
			_ = r.sender.SendFrame(ctx, chunk.Data, "speech")
		}
		if err := r.sender.SendSegmentEnd(ctx); err != nil {
			r.logger.Warn("segment end not delivered", "err", err)
		}
	}
}

// finish flushes pending audio, announces the end of the stream and releases
// the source.
func (r *Recorder) finish(ctx context.Context) {
	r.recording.Store(false)
	if chunk, ok := r.chunker.Flush(); ok {
		_ = r.sender.SendFrame(ctx, chunk.Data, "speech")
	}
	if err := r.sender.SendEnd(ctx); err != nil {
		r.logger.Warn("end marker not delivered", "err", err)
	}
	if err := r.source.Close(); err != nil {
		r.logger.Warn("source close failed", "err", err)
	}
}
