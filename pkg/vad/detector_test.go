package vad_test

import (
	"testing"
	"time"

	"github.com/voxlink/voxlink/pkg/vad"
)

// blockInterval matches the default 1024-sample frame cadence at 16kHz.
const blockInterval = 64 * time.Millisecond

// fakeClock scripts the detector's view of time.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

// block returns a constant-amplitude sample block, whose RMS equals amp.
func block(amp float32) []float32 {
	b := make([]float32, 256)
	for i := range b {
		b[i] = amp
	}
	return b
}

// feed advances the clock one block interval and processes a block.
func feed(d *vad.Detector, clk *fakeClock, amp float32) vad.Result {
	clk.t = clk.t.Add(blockInterval)
	return d.ProcessSample(block(amp))
}

func TestDetector_UtteranceLifecycle(t *testing.T) {
	clk := newFakeClock()
	d := vad.New(vad.Config{}, vad.WithClock(clk.now))

	var stops int
	var states []vad.State
	record := func(r vad.Result) {
		if r.ShouldStop {
			stops++
		}
		if len(states) == 0 || states[len(states)-1] != r.Status {
			states = append(states, r.Status)
		}
	}

	// Quiet lead-in: pure silence, nothing streamed yet.
	for _i := 0; _i < 10; _i++ {
		r := feed(d, clk, 0.001)
		if r.ShouldSend {
			t.Fatal("pure silence before any utterance must not send")
		}
		record(r)
	}

	// Loud speech well past the minimum duration (~768ms).
	for _i := 0; _i < 12; _i++ {
		r := feed(d, clk, 0.5)
		if !r.ShouldSend {
			t.Fatal("speech blocks must always send")
		}
		record(r)
	}
	if d.State() != vad.StateSpeech {
		t.Fatalf("state after loud run = %v, want speech", d.State())
	}

	// Sustained silence: commit arms after MaxSilence, fires after the delay.
	for _i := 0; _i < 45; _i++ {
		record(feed(d, clk, 0.001))
	}

	if stops != 1 {
		t.Fatalf("got %d segment-end commitments, want exactly 1", stops)
	}
	if d.State() != vad.StateWaiting {
		t.Fatalf("final state = %v, want waiting", d.State())
	}

	// silence* → speech+ → waiting, no oscillation.
	want := []vad.State{vad.StateSilence, vad.StateSpeech, vad.StateWaiting}
	if len(states) != len(want) {
		t.Fatalf("state sequence %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state sequence %v, want %v", states, want)
		}
	}
}

func TestDetector_LenientWaitingKeepsSending(t *testing.T) {
	clk := newFakeClock()
	d := vad.New(vad.Config{}, vad.WithClock(clk.now))

	driveToWaiting(t, d, clk)

	r := feed(d, clk, 0.001)
	if r.Status != vad.StateWaiting {
		t.Fatalf("status = %v, want waiting", r.Status)
	}
	if !r.ShouldSend {
		t.Error("lenient variant must keep sending during waiting")
	}
	if r.ShouldStop {
		t.Error("waiting must not emit further segment ends")
	}
}

func TestDetector_StrictWaitingSuppressesSending(t *testing.T) {
	clk := newFakeClock()
	d := vad.New(vad.Config{SuppressWhileWaiting: true}, vad.WithClock(clk.now))

	driveToWaiting(t, d, clk)

	if r := feed(d, clk, 0.001); r.ShouldSend {
		t.Error("strict variant must suppress sending during waiting")
	}
}

func TestDetector_HysteresisNeverLeavesSilence(t *testing.T) {
	clk := newFakeClock()
	d := vad.New(vad.Config{}, vad.WithClock(clk.now))

	// Oscillate between the silence threshold (0.003 at the floor) and just
	// under the speech threshold (0.01 floor). Must never leave silence.
	amps := []float32{0.006, 0.009, 0.004, 0.0095, 0.007}
	for i := 0; i < 100; i++ {
		r := feed(d, clk, amps[i%len(amps)])
		if r.Status != vad.StateSilence {
			t.Fatalf("block %d: left silence at amplitude %v", i, amps[i%len(amps)])
		}
		if r.ShouldStop {
			t.Fatalf("block %d: unexpected segment end in silence", i)
		}
	}
}

func TestDetector_RenewedSpeechCancelsPendingCommit(t *testing.T) {
	clk := newFakeClock()
	d := vad.New(vad.Config{}, vad.WithClock(clk.now))

	// Speak, then fall silent long enough to arm the delayed commit.
	for _i := 0; _i < 12; _i++ {
		feed(d, clk, 0.5)
	}
	for _i := 0; _i < 25; _i++ { // ~1600ms of silence: commit armed but not yet due
		feed(d, clk, 0.001)
	}
	if d.State() != vad.StateSpeech {
		t.Fatalf("state = %v, want speech with pending commit", d.State())
	}

	// Resume speaking before the delay elapses: the commit must be cancelled.
	for _i := 0; _i < 5; _i++ {
		if r := feed(d, clk, 0.5); r.ShouldStop {
			t.Fatal("renewed speech must cancel the pending segment end")
		}
	}

	// A short pause after resuming must not commit either: the silence
	// clock restarted.
	for _i := 0; _i < 10; _i++ { // ~640ms < MaxSilence
		if r := feed(d, clk, 0.001); r.ShouldStop {
			t.Fatal("segment end fired before MaxSilence elapsed again")
		}
	}
	if d.State() != vad.StateSpeech {
		t.Fatalf("state = %v, want speech", d.State())
	}
}

func TestDetector_HardSilenceGuard(t *testing.T) {
	clk := newFakeClock()
	// Delay long enough that only the hard guard can commit.
	d := vad.New(vad.Config{
		SegmentEndDelay: time.Hour,
		HardSilence:     2 * time.Second,
	}, vad.WithClock(clk.now))

	for _i := 0; _i < 12; _i++ {
		feed(d, clk, 0.5)
	}
	var stops int
	for _i := 0; _i < 40; _i++ { // ~2.5s of silence
		if feed(d, clk, 0.001).ShouldStop {
			stops++
		}
	}
	if stops != 1 {
		t.Fatalf("hard-silence guard fired %d times, want 1", stops)
	}
	if d.State() != vad.StateWaiting {
		t.Fatalf("state = %v, want waiting", d.State())
	}
}

func TestDetector_Reset(t *testing.T) {
	clk := newFakeClock()
	d := vad.New(vad.Config{}, vad.WithClock(clk.now))

	driveToWaiting(t, d, clk)
	d.Reset()

	if d.State() != vad.StateSilence {
		t.Fatalf("state after reset = %v, want silence", d.State())
	}
	if d.UtteranceDetected() {
		t.Error("utterance flag must clear on reset")
	}
	// A new utterance can run the full cycle again.
	driveToWaiting(t, d, clk)
}

// driveToWaiting pushes a detector through one full utterance.
func driveToWaiting(t *testing.T, d *vad.Detector, clk *fakeClock) {
	t.Helper()
	for _i := 0; _i < 12; _i++ {
		feed(d, clk, 0.5)
	}
	for _i := 0; _i < 45; _i++ {
		feed(d, clk, 0.001)
	}
	if d.State() != vad.StateWaiting {
		t.Fatalf("state = %v, want waiting", d.State())
	}
}
