package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Endpoints.APIBase == "" {
		errs = append(errs, errors.New("endpoints.api_base is required"))
	} else if err := validURL(cfg.Endpoints.APIBase, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("endpoints.api_base: %w", err))
	}
	if cfg.Endpoints.AudioWS == "" {
		errs = append(errs, errors.New("endpoints.audio_ws is required"))
	} else if err := validURL(cfg.Endpoints.AudioWS, "ws", "wss", "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("endpoints.audio_ws: %w", err))
	}
	if cfg.Endpoints.TextSSE != "" {
		if err := validURL(cfg.Endpoints.TextSSE, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("endpoints.text_sse: %w", err))
		}
	}

	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [0, 2]", cfg.Audio.Channels))
	}
	if cfg.Audio.BitDepth != 0 && cfg.Audio.BitDepth != 16 {
		errs = append(errs, fmt.Errorf("audio.bit_depth %d is unsupported; only 16-bit PCM is implemented", cfg.Audio.BitDepth))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must not be negative", cfg.Audio.FrameSize))
	}

	if cfg.VAD.FloorThreshold < 0 || cfg.VAD.FloorThreshold >= 1 {
		errs = append(errs, fmt.Errorf("vad.floor_threshold %.3f is out of range [0, 1)", cfg.VAD.FloorThreshold))
	}
	if cfg.VAD.MinSpeech < 0 || cfg.VAD.MaxSilence < 0 || cfg.VAD.SegmentEndDelay < 0 {
		errs = append(errs, errors.New("vad durations must not be negative"))
	}

	if cfg.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries %d must not be negative", cfg.Retry.MaxRetries))
	}
	if cfg.Retry.BackoffFactor != 0 && cfg.Retry.BackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("retry.backoff_factor %.2f must be at least 1", cfg.Retry.BackoffFactor))
	}
	if cfg.Retry.MaxDelay != 0 && cfg.Retry.MaxDelay < cfg.Retry.InitialDelay {
		errs = append(errs, errors.New("retry.max_delay must not be below retry.initial_delay"))
	}

	if cfg.TTS.Timeout < 0 || cfg.TTS.ProbeInterval < 0 {
		errs = append(errs, errors.New("tts durations must not be negative"))
	}
	if cfg.TTS.MaxTimeouts < 0 {
		errs = append(errs, fmt.Errorf("tts.max_timeouts %d must not be negative", cfg.TTS.MaxTimeouts))
	}

	if cfg.Client.LogLevel != "" && !cfg.Client.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("client.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Client.LogLevel))
	}

	return errors.Join(errs...)
}

// validURL checks that raw parses and uses one of the given schemes.
func validURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme %q is not one of %v", u.Scheme, schemes)
}
