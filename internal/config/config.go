// Package config provides the configuration schema and loader for the
// voxlink client.
package config

import "time"

// LogLevel controls log verbosity for the voxlink client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxlink.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Retry     RetryConfig     `yaml:"retry"`
	TTS       TTSConfig       `yaml:"tts"`
	Client    ClientConfig    `yaml:"client"`
}

// EndpointsConfig holds the backend endpoints the client talks to.
type EndpointsConfig struct {
	// APIBase is the REST base URL (e.g., "https://chat.example.com").
	APIBase string `yaml:"api_base"`

	// AudioWS is the realtime audio WebSocket endpoint.
	AudioWS string `yaml:"audio_ws"`

	// TextSSE is the text-chat SSE endpoint.
	TextSSE string `yaml:"text_sse"`
}

// AudioConfig describes the outbound PCM stream.
type AudioConfig struct {
	// SampleRate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels of audio. Default 1.
	Channels int `yaml:"channels"`

	// BitDepth in bits per sample. Only 16 is supported.
	BitDepth int `yaml:"bit_depth"`

	// FrameSize is the samples per outbound frame. Default 1024.
	FrameSize int `yaml:"frame_size"`
}

// VADConfig tunes voice activity detection.
type VADConfig struct {
	// FloorThreshold is the minimum RMS counted as speech. Default 0.01.
	FloorThreshold float64 `yaml:"floor_threshold"`

	// MinSpeech is the minimum utterance length before a segment may end.
	MinSpeech time.Duration `yaml:"min_speech"`

	// MaxSilence is the trailing silence that arms the segment end.
	MaxSilence time.Duration `yaml:"max_silence"`

	// SegmentEndDelay is the grace period before the armed segment end
	// commits.
	SegmentEndDelay time.Duration `yaml:"segment_end_delay"`

	// SuppressWhileWaiting stops streaming audio while a reply is pending.
	SuppressWhileWaiting bool `yaml:"suppress_while_waiting"`
}

// RetryConfig tunes the reconnect backoff shared by the error manager and
// the SSE client.
type RetryConfig struct {
	// MaxRetries per failure before the fallback runs. Default 3.
	MaxRetries int `yaml:"max_retries"`

	// InitialDelay before the first retry. Default 1s.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the backoff curve. Default 10s.
	MaxDelay time.Duration `yaml:"max_delay"`

	// BackoffFactor multiplies the delay per attempt. Default 2.
	BackoffFactor float64 `yaml:"backoff_factor"`
}

// TTSConfig tunes the speech-delivery watchdog.
type TTSConfig struct {
	// Timeout per TTS request. Default 10s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxTimeouts before the client falls back to text-only. Default 3.
	MaxTimeouts int `yaml:"max_timeouts"`

	// ProbeInterval between recovery probes in fallback mode. Default 60s.
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// ClientConfig holds process-level settings.
type ClientConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the Prometheus scrape listen address (e.g., ":9090").
	// Empty disables the metrics endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// Token is an optional bearer token for the REST API.
	Token string `yaml:"token"`
}
