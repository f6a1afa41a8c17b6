package audio

import (
	"time"
)

// Chunk is a single framed unit of outbound audio. Data is little-endian
// 16-bit PCM of exactly the processor's frame size; Seq is monotonic per
// processor with gaps only after an explicit Reset.
type Chunk struct {
	Seq       uint64
	Timestamp time.Time
	Data      []byte
}

// ChunkConfig describes the stream format a ChunkProcessor emits.
type ChunkConfig struct {
	// SampleRate in Hz. Default 16000.
	SampleRate int

	// Channels. Default 1.
	Channels int

	// FrameSize is the number of samples per emitted chunk.
	// Default 1024 (~64ms at 16kHz).
	FrameSize int
}

// DefaultChunkConfig is the stream format used by the voxlink audio channel:
// 16kHz mono with 1024-sample frames.
var DefaultChunkConfig = ChunkConfig{
	SampleRate: 16000,
	Channels:   1,
	FrameSize:  1024,
}

func (c ChunkConfig) withDefaults() ChunkConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultChunkConfig.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChunkConfig.Channels
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultChunkConfig.FrameSize
	}
	return c
}

// FrameDuration returns the wall-clock duration covered by one frame.
func (c ChunkConfig) FrameDuration() time.Duration {
	c = c.withDefaults()
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// ChunkProcessor buffers incoming normalized float samples and emits
// fixed-size PCM chunks tagged with sequence numbers and timestamps.
// Not safe for concurrent use; create one per recording session.
type ChunkProcessor struct {
	cfg     ChunkConfig
	pending []float32
	seq     uint64
	started time.Time

	// now is the clock source; replaced in tests.
	now func() time.Time
}

// NewChunkProcessor creates a processor for the given stream format.
// Zero-value config fields fall back to DefaultChunkConfig.
func NewChunkProcessor(cfg ChunkConfig) *ChunkProcessor {
	now := time.Now
	return &ChunkProcessor{
		cfg:     cfg.withDefaults(),
		started: now(),
		now:     now,
	}
}

// Process appends samples to the pending buffer and returns all whole frames
// now available. A trailing partial frame stays buffered until the next call
// or Flush.
func (p *ChunkProcessor) Process(samples []float32) []Chunk {
	p.pending = append(p.pending, samples...)

	var chunks []Chunk
	for len(p.pending) >= p.cfg.FrameSize {
		frame := p.pending[:p.cfg.FrameSize]
		p.pending = p.pending[p.cfg.FrameSize:]
		chunks = append(chunks, p.emit(frame))
	}
	return chunks
}

// Flush emits the buffered partial frame, zero-padded to the full frame size.
// Returns false if nothing is buffered.
func (p *ChunkProcessor) Flush() (Chunk, bool) {
	if len(p.pending) == 0 {
		return Chunk{}, false
	}
	frame := make([]float32, p.cfg.FrameSize)
	copy(frame, p.pending)
	p.pending = p.pending[:0]
	return p.emit(frame), true
}

// ProcessAll frames an arbitrary-length buffer in one call, zero-padding the
// final partial frame. For input of n samples it emits ceil(n/frameSize)
// chunks, each of exactly frameSize samples.
func (p *ChunkProcessor) ProcessAll(samples []float32) []Chunk {
	chunks := p.Process(samples)
	if last, ok := p.Flush(); ok {
		chunks = append(chunks, last)
	}
	return chunks
}

func (p *ChunkProcessor) emit(frame []float32) Chunk {
	c := Chunk{
		Seq:       p.seq,
		Timestamp: p.now(),
		Data:      FloatsToPCM16(frame),
	}
	p.seq++
	return c
}

// Seq returns the sequence number the next emitted chunk will carry.
func (p *ChunkProcessor) Seq() uint64 { return p.seq }

// Pending returns the number of buffered samples awaiting a full frame.
func (p *ChunkProcessor) Pending() int { return len(p.pending) }

// Config returns the processor's stream format.
func (p *ChunkProcessor) Config() ChunkConfig { return p.cfg }

// Reset drops buffered samples and restarts the sequence counter. The only
// operation that introduces a sequence-number gap.
func (p *ChunkProcessor) Reset() {
	p.pending = p.pending[:0]
	p.seq = 0
	p.started = p.now()
}

// Elapsed returns the time since the processor was created or last Reset.
func (p *ChunkProcessor) Elapsed() time.Duration {
	return p.now().Sub(p.started)
}
