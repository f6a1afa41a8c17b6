package audio_test

import (
	"testing"

	"github.com/voxlink/voxlink/pkg/audio"
)

func TestChunkProcessor_WholeFrames(t *testing.T) {
	p := audio.NewChunkProcessor(audio.ChunkConfig{FrameSize: 4})

	chunks := p.Process(make([]float32, 10))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 whole frames from 10 samples, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Seq != uint64(i) {
			t.Errorf("chunk %d: seq = %d, want %d", i, c.Seq, i)
		}
		if len(c.Data) != 8 {
			t.Errorf("chunk %d: %d bytes, want 8", i, len(c.Data))
		}
	}
	if p.Pending() != 2 {
		t.Errorf("pending = %d, want 2", p.Pending())
	}
}

func TestChunkProcessor_FlushZeroPads(t *testing.T) {
	p := audio.NewChunkProcessor(audio.ChunkConfig{FrameSize: 8})
	p.Process([]float32{0.5, 0.5, 0.5})

	c, ok := p.Flush()
	if !ok {
		t.Fatal("expected a flushed chunk")
	}
	if len(c.Data) != 16 {
		t.Fatalf("flushed chunk is %d bytes, want 16", len(c.Data))
	}
	samples := audio.PCM16ToFloats(c.Data)
	for i := 3; i < 8; i++ {
		if samples[i] != 0 {
			t.Errorf("padded sample %d = %v, want 0", i, samples[i])
		}
	}
	if _, ok := p.Flush(); ok {
		t.Error("second Flush should report nothing buffered")
	}
}

func TestChunkProcessor_ProcessAllChunkCount(t *testing.T) {
	// ceil(n/frameSize) chunks for any n, each exactly frameSize samples.
	cases := []struct {
		n, frameSize, want int
	}{
		{0, 4, 0},
		{1, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{1024, 1024, 1},
		{3000, 1024, 3},
	}
	for _, c := range cases {
		p := audio.NewChunkProcessor(audio.ChunkConfig{FrameSize: c.frameSize})
		chunks := p.ProcessAll(make([]float32, c.n))
		if len(chunks) != c.want {
			t.Errorf("n=%d frame=%d: got %d chunks, want %d", c.n, c.frameSize, len(chunks), c.want)
			continue
		}
		for i, ch := range chunks {
			if len(ch.Data) != c.frameSize*2 {
				t.Errorf("n=%d chunk %d: %d bytes, want %d", c.n, i, len(ch.Data), c.frameSize*2)
			}
		}
	}
}

func TestChunkProcessor_SequenceContinuesAcrossCalls(t *testing.T) {
	p := audio.NewChunkProcessor(audio.ChunkConfig{FrameSize: 2})

	first := p.ProcessAll(make([]float32, 5)) // seq 0,1,2
	second := p.ProcessAll(make([]float32, 4)) // seq 3,4
	if p.Seq() != 5 {
		t.Fatalf("seq after 5 chunks = %d, want 5", p.Seq())
	}
	all := append(first, second...)
	for i, c := range all {
		if c.Seq != uint64(i) {
			t.Errorf("chunk %d: seq = %d, want %d", i, c.Seq, i)
		}
	}
}

func TestChunkProcessor_Reset(t *testing.T) {
	p := audio.NewChunkProcessor(audio.ChunkConfig{FrameSize: 2})
	p.ProcessAll(make([]float32, 6))
	p.Process([]float32{0.1})
	p.Reset()

	if p.Seq() != 0 {
		t.Errorf("seq after reset = %d, want 0", p.Seq())
	}
	if p.Pending() != 0 {
		t.Errorf("pending after reset = %d, want 0", p.Pending())
	}
}

func TestChunkConfig_FrameDuration(t *testing.T) {
	d := audio.DefaultChunkConfig.FrameDuration()
	// 1024 samples at 16kHz = 64ms.
	if d.Milliseconds() != 64 {
		t.Errorf("default frame duration = %v, want 64ms", d)
	}
}
