// Command voxlink is the CLI for the voxlink voice chat client. It streams a
// PCM capture file through voice-activity detection to the backend's audio
// WebSocket, plays back the streamed reply audio into an output directory,
// and can alternatively run a single text turn over SSE.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxlink/voxlink/internal/api"
	"github.com/voxlink/voxlink/internal/config"
	"github.com/voxlink/voxlink/internal/errmgr"
	"github.com/voxlink/voxlink/internal/mic"
	"github.com/voxlink/voxlink/internal/notify"
	"github.com/voxlink/voxlink/internal/observe"
	"github.com/voxlink/voxlink/internal/sse"
	"github.com/voxlink/voxlink/internal/store"
	"github.com/voxlink/voxlink/internal/tts"
	"github.com/voxlink/voxlink/pkg/audio"
	"github.com/voxlink/voxlink/pkg/retry"
	"github.com/voxlink/voxlink/pkg/vad"
	"github.com/voxlink/voxlink/pkg/voice"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	appID := flag.Int64("app", 0, "backend app ID to talk to")
	inputPath := flag.String("input", "", "raw 16-bit PCM capture file streamed as microphone input")
	outDir := flag.String("out", "replies", "directory for received reply audio")
	message := flag.String("message", "", "send one text message over SSE instead of streaming audio")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxlink: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxlink: %v\n", err)
		}
		return 1
	}
	if *appID == 0 {
		fmt.Fprintln(os.Stderr, "voxlink: -app is required")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Client.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxlink starting",
		"config", *configPath,
		"app_id", *appID,
		"log_level", cfg.Client.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObs, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxlink"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObs(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Client.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Client.MetricsAddr, Handler: mux}
		g.Go(func() error {
			<-ctx.Done()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(closeCtx)
		})
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.Client.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	// ── Error handling pipeline ───────────────────────────────────────────────
	notifier := &notify.Log{Logger: logger}
	manager := errmgr.NewManager(notifier,
		errmgr.WithBackoff(retryConfig(cfg.Retry)),
		errmgr.WithLogger(logger),
	)
	handle := func(e *errmgr.AppError) { manager.Handle(ctx, e) }

	watchdog := tts.NewWatchdog(cfg.Endpoints.APIBase, handle,
		tts.WithTimeout(cfg.TTS.Timeout),
		tts.WithMaxTimeouts(cfg.TTS.MaxTimeouts),
		tts.WithProbeInterval(cfg.TTS.ProbeInterval),
		tts.WithLogger(logger),
		tts.WithFallbackHook(func(active bool) {
			if active {
				slog.Warn("voice replies unavailable, continuing text-only")
			} else {
				slog.Info("voice replies restored")
			}
		}),
	)
	defer watchdog.Close()

	// ── Stores & backend client ───────────────────────────────────────────────
	chat := store.NewChatStore()
	conns := store.NewConnectionStore()

	apiClient, err := api.NewClient(cfg.Endpoints.APIBase, api.WithToken(cfg.Client.Token))
	if err != nil {
		slog.Error("failed to create api client", "err", err)
		return 1
	}
	if user, err := apiClient.CurrentUser(ctx); err != nil {
		if errors.Is(err, api.ErrNotAuthenticated) {
			slog.Warn("not logged in; history and app management are unavailable")
		} else {
			slog.Warn("could not verify login", "err", err)
		}
	} else {
		slog.Info("logged in", "user", user.Name)
	}
	if err := chat.LoadHistory(ctx, apiClient, *appID, 1, 50); err != nil {
		slog.Warn("could not load chat history", "err", err)
	}

	// ── Reply assembly ────────────────────────────────────────────────────────
	detector := vad.New(vadConfig(cfg.VAD))
	var replyArrived func()
	asm := voice.NewAssembler(
		voice.WithPartial(chat.SetStreaming),
		voice.WithComplete(func(m voice.Message) {
			chat.CompleteStreaming(m)
			metrics.RepliesCompleted.Add(ctx, 1)
			fmt.Printf("assistant> %s\n", m.Text)
			if replyArrived != nil {
				replyArrived()
			}
		}),
		voice.WithCompleteHook(detector.Reset),
	)
	defer asm.Close()

	// ── Text-only turn over SSE ───────────────────────────────────────────────
	if *message != "" {
		if cfg.Endpoints.TextSSE == "" {
			fmt.Fprintln(os.Stderr, "voxlink: endpoints.text_sse is not configured")
			return 1
		}
		sseClient, err := sse.NewClient(cfg.Endpoints.TextSSE,
			sse.WithRetry(retryConfig(cfg.Retry)),
			sse.WithErrorSink(handle),
			sse.WithLogger(logger),
		)
		if err != nil {
			slog.Error("failed to create sse client", "err", err)
			return 1
		}
		chat.Append(voice.Message{ID: "local", Role: voice.RoleUser, Text: *message, Timestamp: time.Now()})
		if err := sseClient.Stream(ctx, *appID, *message, asm); err != nil {
			slog.Error("text turn failed", "err", err)
			return 1
		}
		return 0
	}

	// ── Voice pipeline ────────────────────────────────────────────────────────
	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "voxlink: -input is required for voice mode")
		return 1
	}

	source, err := openSource(*inputPath, cfg.Audio.FrameSize)
	if err != nil {
		handle(mic.Classify(err))
		for _, hint := range mic.GuidanceFor(err) {
			fmt.Fprintln(os.Stderr, "  hint: "+hint)
		}
		return 1
	}

	player, err := newFilePlayer(*outDir, cfg.Audio.SampleRate)
	if err != nil {
		slog.Error("failed to prepare reply directory", "err", err)
		return 1
	}
	queue := voice.NewPlaybackQueue(player, cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.BitDepth,
		voice.WithQueueErrorSink(handle),
		voice.WithQueueMetrics(metrics),
	)

	// Sessions are single-shot, so reconnecting means building a fresh one.
	live := &liveSession{
		appID: fmt.Sprint(*appID),
		dog:   watchdog,
		build: func() *voice.Session {
			return voice.NewSession(
				voice.SessionConfig{
					URL:        cfg.Endpoints.AudioWS,
					SampleRate: cfg.Audio.SampleRate,
					Channels:   cfg.Audio.Channels,
					BitDepth:   cfg.Audio.BitDepth,
					FrameSize:  cfg.Audio.FrameSize,
				},
				voice.WithAssembler(asm),
				voice.WithPlayback(queue),
				voice.WithRecognition(nil, func(text string) {
					if text != "" {
						fmt.Printf("you> %s\n", text)
					}
				}),
				voice.WithUserMessage(chat.Append),
				voice.WithStateChange(func(st voice.State) { conns.Set(store.ChannelAudio, st) }),
				voice.WithErrorSink(handle),
				voice.WithSessionLogger(logger),
				voice.WithSessionMetrics(metrics),
			)
		},
	}
	replyArrived = live.replyArrived

	if err := live.connect(ctx); err != nil {
		return 1
	}

	// Dropped connections reconnect with backoff; once retries run out the
	// run ends instead of limping on without a transport.
	reconnect := func(ctx context.Context) error { return live.connect(ctx) }
	manager.Register(errmgr.TypeConnectionLost, errmgr.Handler{
		Message:  "Connection lost",
		Severity: errmgr.SeverityHigh,
		Retry:    reconnect,
		Fallback: func() { slog.Error("connection not recovered, shutting down"); stop() },
		Guidance: []string{"The connection dropped, reconnecting"},
	})
	manager.Register(errmgr.TypeWebSocket, errmgr.Handler{
		Message:  "Voice channel connection failed",
		Severity: errmgr.SeverityHigh,
		Retry:    reconnect,
		Fallback: func() { slog.Error("voice channel not recovered, shutting down"); stop() },
		Guidance: []string{"Could not reach the server, please retry shortly"},
	})

	recorder := voice.NewRecorder(source, live, detector,
		audio.ChunkConfig{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			FrameSize:  cfg.Audio.FrameSize,
		},
		voice.WithRecorderErrorSink(handle),
		voice.WithRecorderLogger(logger),
	)

	g.Go(func() error {
		defer stop()
		return recorder.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		recorder.Stop()
		return nil
	})

	err = g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	live.disconnect(disconnectCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye", "stats", fmt.Sprintf("%+v", recorder.Stats()))
	return 0
}

// liveSession holds the current transport session, rebuilding it on
// reconnect, and arms the delivery watchdog whenever a segment end goes out
// so a backend that never answers trips the text-only fallback.
type liveSession struct {
	appID string
	dog   *tts.Watchdog
	build func() *voice.Session

	mu      sync.Mutex
	sess    *voice.Session
	pending string
}

// connect dials a fresh session and swaps it in. The previous session, if
// any, is torn down after the swap so frame sends never see a nil session.
func (l *liveSession) connect(ctx context.Context) error {
	sess := l.build()
	if err := sess.Connect(ctx, l.appID); err != nil {
		return err
	}
	l.mu.Lock()
	old := l.sess
	l.sess = sess
	l.mu.Unlock()
	if old != nil {
		old.Disconnect(ctx)
	}
	return nil
}

func (l *liveSession) disconnect(ctx context.Context) {
	if s := l.current(); s != nil {
		s.Disconnect(ctx)
	}
}

func (l *liveSession) current() *voice.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess
}

func (l *liveSession) SendFrame(ctx context.Context, pcm []byte, kind string) error {
	return l.current().SendFrame(ctx, pcm, kind)
}

func (l *liveSession) SendSegmentEnd(ctx context.Context) error {
	if err := l.current().SendSegmentEnd(ctx); err != nil {
		return err
	}
	id := tts.NewRequestID()
	l.mu.Lock()
	l.pending = id
	l.mu.Unlock()
	l.dog.Watch(id)
	return nil
}

func (l *liveSession) SendEnd(ctx context.Context) error {
	return l.current().SendEnd(ctx)
}

func (l *liveSession) replyArrived() {
	l.mu.Lock()
	id := l.pending
	l.pending = ""
	l.mu.Unlock()
	if id != "" {
		l.dog.Done(id)
	}
}

// ── Capture source ────────────────────────────────────────────────────────────

// fileSource replays a raw 16-bit little-endian PCM file block by block,
// pacing reads to the real-time frame cadence.
type fileSource struct {
	f         *os.File
	frameSize int
	buf       []byte
	interval  time.Duration
	last      time.Time
}

func openSource(path string, frameSize int) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", mic.ErrNotFound, path)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", mic.ErrNotAllowed, path)
		}
		return nil, fmt.Errorf("%w: %v", mic.ErrNotReadable, err)
	}
	if frameSize == 0 {
		frameSize = 1024
	}
	return &fileSource{
		f:         f,
		frameSize: frameSize,
		buf:       make([]byte, frameSize*2),
		interval:  time.Duration(frameSize) * time.Second / 16000,
	}, nil
}

func (s *fileSource) Next(ctx context.Context) ([]float32, error) {
	// Pace to real time so VAD durations behave as they would live.
	if !s.last.IsZero() {
		wait := s.interval - time.Since(s.last)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	s.last = time.Now()

	n, err := io.ReadFull(s.f, s.buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) && n > 0 {
			return audio.PCM16ToFloats(s.buf[:n-n%2]), nil
		}
		return nil, io.EOF
	}
	return audio.PCM16ToFloats(s.buf), nil
}

func (s *fileSource) Close() error {
	return s.f.Close()
}

// ── Reply playback ────────────────────────────────────────────────────────────

// filePlayer writes each reply buffer into the output directory. Raw
// fallback buffers get wrapped into WAV so every written file is playable.
type filePlayer struct {
	dir        string
	sampleRate int

	mu  sync.Mutex
	seq int
}

func newFilePlayer(dir string, sampleRate int) (*filePlayer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &filePlayer{dir: dir, sampleRate: sampleRate}, nil
}

func (p *filePlayer) Play(ctx context.Context, buf []byte) error {
	return p.write(buf, audio.DetectFormat(buf).String())
}

func (p *filePlayer) PlayRaw(ctx context.Context, pcm []byte) error {
	return p.write(audio.EncodeWAV(pcm, p.sampleRate, 1, 16), "wav")
}

func (p *filePlayer) write(buf []byte, ext string) error {
	p.mu.Lock()
	p.seq++
	name := filepath.Join(p.dir, fmt.Sprintf("reply-%03d.%s", p.seq, ext))
	p.mu.Unlock()
	return os.WriteFile(name, buf, 0o644)
}

// ── Config mapping ────────────────────────────────────────────────────────────

func retryConfig(rc config.RetryConfig) retry.Config {
	cfg := retry.DefaultConfig
	if rc.MaxRetries > 0 {
		cfg.MaxRetries = rc.MaxRetries
	}
	if rc.InitialDelay > 0 {
		cfg.InitialDelay = rc.InitialDelay
	}
	if rc.MaxDelay > 0 {
		cfg.MaxDelay = rc.MaxDelay
	}
	if rc.BackoffFactor > 0 {
		cfg.BackoffFactor = rc.BackoffFactor
	}
	return cfg
}

func vadConfig(vc config.VADConfig) vad.Config {
	return vad.Config{
		FloorThreshold:       vc.FloorThreshold,
		MinSpeech:            vc.MinSpeech,
		MaxSilence:           vc.MaxSilence,
		SegmentEndDelay:      vc.SegmentEndDelay,
		SuppressWhileWaiting: vc.SuppressWhileWaiting,
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
