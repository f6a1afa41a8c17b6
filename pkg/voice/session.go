package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/voxlink/voxlink/internal/errmgr"
	"github.com/voxlink/voxlink/internal/observe"
	"github.com/voxlink/voxlink/pkg/audio"
	"github.com/voxlink/voxlink/pkg/retry"
)

// State is the session lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "error"
	}
}

// DefaultKeepalive is the interval at which a silence frame is sent when no
// real audio went out, so the backend keeps the stream warm between turns.
const DefaultKeepalive = time.Second

// Inbound text-frame tags. Everything else is either control JSON or a bare
// recognition result.
const (
	tagReply   = "REPLY:"
	tagAudio   = "AUDIO:"
	tagPartial = "PARTIAL:"
	tagFinal   = "FINAL:"
)

// controlFrame is the JSON shape of untagged control messages in both
// directions.
type controlFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// URL is the audio WebSocket endpoint.
	URL string

	// Header carries extra handshake headers (auth token etc.).
	Header http.Header

	// SampleRate, Channels, BitDepth and FrameSize describe the outbound
	// PCM stream and the keepalive silence frame. Zero values default to
	// 16000/1/16/1024.
	SampleRate int
	Channels   int
	BitDepth   int
	FrameSize  int

	// Keepalive is the silence-frame interval. Zero means DefaultKeepalive;
	// negative disables keepalive.
	Keepalive time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.BitDepth == 0 {
		c.BitDepth = 16
	}
	if c.FrameSize == 0 {
		c.FrameSize = 1024
	}
	if c.Keepalive == 0 {
		c.Keepalive = DefaultKeepalive
	}
	return c
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithAssembler sets the reply assembler. When unset, REPLY fragments are
// dropped.
func WithAssembler(a *Assembler) SessionOption {
	return func(s *Session) { s.assembler = a }
}

// WithPlayback sets the TTS playback queue. When unset, audio payloads are
// dropped.
func WithPlayback(q *PlaybackQueue) SessionOption {
	return func(s *Session) { s.playback = q }
}

// WithRecognition registers callbacks for interim and final recognition
// results. final receives the recognized text; non-empty finals additionally
// emit a user Message through WithUserMessage.
func WithRecognition(partial, final func(text string)) SessionOption {
	return func(s *Session) {
		s.onPartial = partial
		s.onFinal = final
	}
}

// WithUserMessage registers the callback for finished user utterances.
func WithUserMessage(fn func(Message)) SessionOption {
	return func(s *Session) { s.onUserMessage = fn }
}

// WithStateChange registers the lifecycle state observer.
func WithStateChange(fn func(State)) SessionOption {
	return func(s *Session) { s.onState = fn }
}

// WithErrorSink routes classified session errors to the given callback.
func WithErrorSink(fn func(*errmgr.AppError)) SessionOption {
	return func(s *Session) { s.onError = fn }
}

// WithSessionLogger overrides the logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithSessionMetrics records frame and connection metrics.
func WithSessionMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// Session is one live audio WebSocket connection. Outbound it carries binary
// PCM frames and JSON control frames; inbound it demultiplexes the tagged
// reply stream. Safe for concurrent use. A Session is single-shot: after
// Disconnect, create a new one.
type Session struct {
	cfg    SessionConfig
	logger *slog.Logger

	assembler *Assembler
	playback  *PlaybackQueue
	metrics   *observe.Metrics

	onPartial     func(string)
	onFinal       func(string)
	onUserMessage func(Message)
	onState       func(State)
	onError       func(*errmgr.AppError)

	state atomic.Int32

	mu   sync.Mutex
	conn *websocket.Conn

	lastSent atomic.Int64 // unix nanos of the last outbound audio frame

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession creates an unconnected Session.
func NewSession(cfg SessionConfig, opts ...SessionOption) *Session {
	s := &Session{
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	if s.onState != nil {
		s.onState(st)
	}
}

// Connect dials the audio endpoint for the given app and starts the read and
// keepalive loops. Connection establishment is bounded by
// [retry.DefaultDialTimeout].
func (s *Session) Connect(ctx context.Context, appID string) error {
	s.setState(StateConnecting)

	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		s.setState(StateError)
		return s.classify(errmgr.TypeWebSocket, err, errmgr.SeverityHigh)
	}
	q := u.Query()
	q.Set("appId", appID)
	u.RawQuery = q.Encode()

	start := time.Now()
	conn, err := retry.DialWebSocket(ctx, u.String(), s.cfg.Header)
	if err != nil {
		s.setState(StateError)
		return s.classify(errmgr.TypeWebSocket, err, errmgr.SeverityHigh)
	}
	if s.metrics != nil {
		s.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
		s.metrics.ActiveSessions.Add(ctx, 1)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(StateConnected)
	s.logger.Info("session connected", "app_id", appID, "url", s.cfg.URL)

	s.wg.Add(1)
	go s.readLoop()
	if s.cfg.Keepalive > 0 {
		s.wg.Add(1)
		go s.keepaliveLoop()
	}
	return nil
}

// SendFrame sends one binary PCM frame. kind labels the frame for metrics
// ("speech" or "silence"); an empty kind counts as speech.
func (s *Session) SendFrame(ctx context.Context, pcm []byte, kind string) error {
	if err := s.write(ctx, websocket.MessageBinary, pcm); err != nil {
		return s.classify(errmgr.TypeWebSocket, err, errmgr.SeverityMedium)
	}
	s.lastSent.Store(time.Now().UnixNano())
	if s.metrics != nil {
		if kind == "" {
			kind = "speech"
		}
		s.metrics.RecordFrame(ctx, kind)
	}
	return nil
}

// SendSegmentEnd tells the backend the current speech segment is finished and
// a reply may be produced.
func (s *Session) SendSegmentEnd(ctx context.Context) error {
	return s.sendControl(ctx, "segment_end")
}

// SendEnd tells the backend recording stopped entirely.
func (s *Session) SendEnd(ctx context.Context) error {
	return s.sendControl(ctx, "end")
}

func (s *Session) sendControl(ctx context.Context, typ string) error {
	payload, _ := json.Marshal(controlFrame{Type: typ})
	if err := s.write(ctx, websocket.MessageText, payload); err != nil {
		return s.classify(errmgr.TypeWebSocket, err, errmgr.SeverityMedium)
	}
	return nil
}

// Disconnect announces the disconnect to the backend, closes the connection
// and waits for the loops to exit. Always leaves the session in
// StateDisconnected.
func (s *Session) Disconnect(ctx context.Context) {
	s.closeOnce.Do(func() {
		close(s.done)

		// Best effort; the connection may already be gone.
		payload, _ := json.Marshal(controlFrame{Type: "disconnect"})
		_ = s.write(ctx, websocket.MessageText, payload)

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		}
		s.wg.Wait()
		if s.metrics != nil && conn != nil {
			s.metrics.ActiveSessions.Add(context.Background(), -1)
		}
		s.setState(StateDisconnected)
		s.logger.Info("session disconnected")
	})
}

func (s *Session) write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("voice: session is not connected")
	}
	return conn.Write(ctx, typ, data)
}

// readLoop demultiplexes inbound frames until the connection drops or the
// session is disconnected.
func (s *Session) readLoop() {
	defer s.wg.Done()
	ctx := context.Background()
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Deliberate disconnect.
			default:
				s.setState(StateError)
				_ = s.classify(errmgr.TypeConnectionLost, err, errmgr.SeverityHigh)
			}
			return
		}
		if typ == websocket.MessageBinary {
			s.enqueueAudio(data)
			continue
		}
		s.handleText(string(data))
	}
}

// handleText routes one inbound text frame by tag prefix. Untagged frames are
// tried as control JSON, then treated as a bare recognition result.
func (s *Session) handleText(msg string) {
	switch {
	case strings.HasPrefix(msg, tagReply):
		s.appendReply(strings.TrimPrefix(msg, tagReply))

	case strings.HasPrefix(msg, tagAudio):
		encoded := strings.TrimPrefix(msg, tagAudio)
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			_ = s.classify(errmgr.TypeAudioPlayback, err, errmgr.SeverityLow)
			return
		}
		s.enqueueAudio(raw)

	case strings.HasPrefix(msg, tagPartial):
		if s.onPartial != nil {
			s.onPartial(strings.TrimPrefix(msg, tagPartial))
		}

	case strings.HasPrefix(msg, tagFinal):
		s.finalRecognition(strings.TrimPrefix(msg, tagFinal))

	default:
		var ctrl controlFrame
		if err := json.Unmarshal([]byte(msg), &ctrl); err == nil && ctrl.Type != "" {
			switch ctrl.Type {
			case "asr_result":
				s.finalRecognition(ctrl.Text)
			case "ai_response":
				s.appendReply(ctrl.Text)
			default:
				s.logger.Debug("ignoring control frame", "type", ctrl.Type)
			}
			return
		}
		// Bare text is a recognition result.
		s.finalRecognition(msg)
	}
}

func (s *Session) appendReply(fragment string) {
	if s.assembler != nil {
		s.assembler.Append(fragment)
	}
}

func (s *Session) finalRecognition(text string) {
	if s.onFinal != nil {
		s.onFinal(text)
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	if s.onUserMessage != nil {
		s.onUserMessage(newMessage(RoleUser, text))
	}
}

func (s *Session) enqueueAudio(buf []byte) {
	if s.playback != nil {
		s.playback.Enqueue(buf)
	}
}

// keepaliveLoop sends a silence frame whenever no real audio went out within
// the keepalive interval.
func (s *Session) keepaliveLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Keepalive)
	defer ticker.Stop()
	frame := audio.SilenceFrame(s.cfg.FrameSize)
	ctx := context.Background()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastSent.Load())
			if time.Since(last) < s.cfg.Keepalive {
				continue
			}
			if err := s.write(ctx, websocket.MessageBinary, frame); err != nil {
				return
			}
			s.lastSent.Store(time.Now().UnixNano())
			if s.metrics != nil {
				s.metrics.RecordFrame(ctx, "keepalive")
			}
		}
	}
}

// classify wraps err into an AppError, reports it, and returns it.
func (s *Session) classify(t errmgr.Type, err error, sev errmgr.Severity) error {
	appErr := errmgr.Wrap(t, err, sev)
	s.logger.Error("session error", "type", t, "err", err)
	if s.metrics != nil {
		s.metrics.RecordError(context.Background(), string(t))
	}
	if s.onError != nil {
		s.onError(appErr)
	}
	return appErr
}
