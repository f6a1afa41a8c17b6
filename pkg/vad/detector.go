// Package vad implements the energy-based voice activity detector that
// segments microphone audio into speech and silence regions.
//
// The detector is a three-state machine (silence, speech, waiting) driven by
// per-block RMS volume against a dynamic dual threshold. The hysteresis band
// between the speech and silence thresholds, a minimum speech duration, and a
// delayed segment-end commit together prevent the chatter a naive
// single-threshold detector would produce on breath noise, while bounding
// end-of-utterance latency.
//
// A Detector is driven synchronously from the audio capture loop and is not
// safe for concurrent use.
package vad

import (
	"fmt"
	"time"

	"github.com/voxlink/voxlink/pkg/audio"
)

// State is the detector's position in the speech/silence cycle.
type State int

const (
	// StateSilence: no active utterance. The initial state.
	StateSilence State = iota

	// StateSpeech: an utterance is in progress.
	StateSpeech

	// StateWaiting: the utterance ended and the remote peer is replying.
	// Held until Reset returns the machine to StateSilence.
	StateWaiting
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateSpeech:
		return "speech"
	case StateWaiting:
		return "waiting"
	default:
		return "silence"
	}
}

// Result is the detector's verdict for one audio block.
type Result struct {
	// Status is the state after processing the block.
	Status State

	// ShouldSend reports whether the block's audio should go to the
	// transport. False only in pure silence before any utterance, or in
	// waiting when SuppressWhileWaiting is set.
	ShouldSend bool

	// ShouldStop is true exactly once per utterance, on the block that
	// commits the segment end.
	ShouldStop bool

	// Volume is the block's RMS amplitude.
	Volume float64

	// Info is a short human-readable status line for UI display.
	Info string
}

// Config tunes the detector. Zero values fall back to the defaults below.
type Config struct {
	// HistorySize bounds the rolling volume history used for the dynamic
	// threshold. Default 10.
	HistorySize int

	// FloorThreshold is the minimum speech threshold regardless of ambient
	// level. Default 0.01.
	FloorThreshold float64

	// SpeechFactor scales the rolling average volume into the speech
	// threshold. Default 2.
	SpeechFactor float64

	// SilenceRatio scales the speech threshold down to the silence
	// threshold, forming the hysteresis band. Default 0.3.
	SilenceRatio float64

	// MinSpeech is the minimum utterance length before a segment end may be
	// considered. Default 600ms.
	MinSpeech time.Duration

	// MaxSilence is the in-speech silence required before the segment-end
	// commit is armed. Default 1500ms.
	MaxSilence time.Duration

	// SegmentEndDelay postpones the armed commit so a resumed sentence can
	// cancel it. Default 800ms.
	SegmentEndDelay time.Duration

	// HardSilence commits the segment directly once this much silence has
	// accumulated, covering the case where the delayed commit is never
	// reached. Default 3s.
	HardSilence time.Duration

	// SuppressWhileWaiting selects the strict variant that stops sending
	// audio during StateWaiting. The default (false) keeps ShouldSend true
	// so the recorder can stream zero-filled frames, which remote
	// recognizers need to run their own end-of-utterance timers.
	SuppressWhileWaiting bool
}

func (c Config) withDefaults() Config {
	if c.HistorySize <= 0 {
		c.HistorySize = 10
	}
	if c.FloorThreshold <= 0 {
		c.FloorThreshold = 0.01
	}
	if c.SpeechFactor <= 0 {
		c.SpeechFactor = 2
	}
	if c.SilenceRatio <= 0 {
		c.SilenceRatio = 0.3
	}
	if c.MinSpeech <= 0 {
		c.MinSpeech = 600 * time.Millisecond
	}
	if c.MaxSilence <= 0 {
		c.MaxSilence = 1500 * time.Millisecond
	}
	if c.SegmentEndDelay <= 0 {
		c.SegmentEndDelay = 800 * time.Millisecond
	}
	if c.HardSilence <= 0 {
		c.HardSilence = 3 * time.Second
	}
	return c
}

// Option configures a Detector during construction.
type Option func(*Detector)

// WithClock replaces the wall clock. Tests use this to script time.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// Detector is the VAD state machine. Create one per recording session.
type Detector struct {
	cfg Config

	state    State
	history  []float64
	volume   float64
	detected bool // an utterance has been heard since the last Reset

	speechStart  time.Time
	silenceStart time.Time

	// commitAt is the armed segment-end deadline. Zero means disarmed.
	// Evaluated on each audio block, so commit latency is bounded by the
	// block cadence (~64ms for the default frame size). Renewed speech
	// disarms it.
	commitAt time.Time

	now func() time.Time
}

// New creates a Detector in StateSilence.
func New(cfg Config, opts ...Option) *Detector {
	d := &Detector{
		cfg:     cfg.withDefaults(),
		history: make([]float64, 0, cfg.withDefaults().HistorySize),
		now:     time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ProcessSample classifies one block of normalized float samples and advances
// the state machine.
func (d *Detector) ProcessSample(block []float32) Result {
	rms := audio.RMS(block)
	d.volume = rms

	d.history = append(d.history, rms)
	if len(d.history) > d.cfg.HistorySize {
		d.history = d.history[1:]
	}
	var sum float64
	for _, v := range d.history {
		sum += v
	}
	avg := sum / float64(len(d.history))

	speechThreshold := avg * d.cfg.SpeechFactor
	if speechThreshold < d.cfg.FloorThreshold {
		speechThreshold = d.cfg.FloorThreshold
	}
	silenceThreshold := speechThreshold * d.cfg.SilenceRatio

	now := d.now()
	res := Result{ShouldSend: true, Volume: rms}

	switch d.state {
	case StateSilence:
		if rms > speechThreshold {
			d.state = StateSpeech
			d.speechStart = now
			d.silenceStart = time.Time{}
			d.detected = true
			d.commitAt = time.Time{}
			res.Info = "speech started"
		} else if d.detected {
			// Trailing silence after an utterance still streams so the
			// recognizer sees the gap.
			res.Info = "waiting for next sentence"
		} else {
			res.ShouldSend = false
			res.Info = "waiting for speech"
		}

	case StateSpeech:
		if rms > silenceThreshold {
			// Still talking; cancel any pending segment end.
			d.silenceStart = time.Time{}
			d.commitAt = time.Time{}
			res.Info = fmt.Sprintf("speaking (%.1fs)", now.Sub(d.speechStart).Seconds())
		} else {
			if d.silenceStart.IsZero() {
				d.silenceStart = now
			}
			speechDur := now.Sub(d.speechStart)
			silenceDur := now.Sub(d.silenceStart)

			if speechDur >= d.cfg.MinSpeech && silenceDur >= d.cfg.MaxSilence {
				if d.commitAt.IsZero() {
					d.commitAt = now.Add(d.cfg.SegmentEndDelay)
				}
				res.Info = fmt.Sprintf("segment ending (%.1fs silent)", silenceDur.Seconds())
			} else {
				res.Info = fmt.Sprintf("pause (%.1fs)", silenceDur.Seconds())
			}

			committed := !d.commitAt.IsZero() && !now.Before(d.commitAt)
			if committed || silenceDur >= d.cfg.HardSilence {
				res.ShouldStop = true
				res.Info = "segment end"
				d.state = StateWaiting
				d.speechStart = time.Time{}
				d.silenceStart = time.Time{}
				d.commitAt = time.Time{}
				d.detected = false
			}
		}

	case StateWaiting:
		res.Info = "awaiting reply"
		res.ShouldSend = !d.cfg.SuppressWhileWaiting
	}

	res.Status = d.state
	return res
}

// State returns the current state without processing audio.
func (d *Detector) State() State { return d.state }

// Volume returns the RMS of the most recent block.
func (d *Detector) Volume() float64 { return d.volume }

// UtteranceDetected reports whether speech has been heard since the last
// Reset or committed segment end.
func (d *Detector) UtteranceDetected() bool { return d.detected }

// Reset returns the machine to StateSilence, clearing timestamps, the
// utterance flag, and any armed segment-end deadline. Called when the reply
// completes or recording stops.
func (d *Detector) Reset() {
	d.state = StateSilence
	d.speechStart = time.Time{}
	d.silenceStart = time.Time{}
	d.commitAt = time.Time{}
	d.detected = false
}
