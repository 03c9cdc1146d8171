package mediastream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"callbridge/internal/session"
	"callbridge/internal/speech"
	"callbridge/pkg/logger"
)

// Config wires the handler to its providers. Streaming and Batch may each be
// nil; with neither set audio is accepted and discarded.
type Config struct {
	Streaming speech.StreamingProvider
	Batch     speech.BatchProvider
	Store     *session.Store
	// BatchTimeout bounds the fallback transcription at stream stop.
	BatchTimeout time.Duration
	// MaxBuffer caps the audio kept for fallback transcription.
	MaxBuffer int
}

func (c Config) withDefaults() Config {
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 30 * time.Second
	}
	if c.MaxBuffer <= 0 {
		// Ten minutes of 8 kHz mu-law.
		c.MaxBuffer = 10 * 60 * 8000
	}
	return c
}

// Handler accepts media stream websockets.
type Handler struct {
	cfg      Config
	registry *Registry
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(cfg Config, registry *Registry, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Handler{
		cfg:      cfg.withDefaults(),
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// The carrier connects from its own origin. When signature
			// validation is on, the route is mounted behind
			// telephony.RequireTwilioSignature.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Handler) Registry() *Registry { return h.registry }

// Handle upgrades the request and serves the stream until the carrier stops it.
func (h *Handler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromOr(c.Request.Context(), h.log).Warn("media stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	// The server's read and write timeouts are meant for webhooks, not a
	// socket that lives as long as the call.
	_ = conn.NetConn().SetDeadline(time.Time{})
	h.Serve(context.WithoutCancel(c.Request.Context()), conn)
}

// Serve reads frames from conn until a stop frame or disconnect.
func (h *Handler) Serve(ctx context.Context, conn *websocket.Conn) {
	log := logger.FromOr(ctx, h.log)
	var st *stream
	defer func() {
		if st != nil {
			h.finish(ctx, st)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if st != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("media stream read failed", "stream_sid", st.sid, "error", err)
			}
			return
		}
		f, err := decodeFrame(data)
		if err != nil {
			log.Debug("media stream: ignoring frame", "error", err)
			continue
		}

		switch f.Event {
		case "connected":
		case "start":
			if st != nil || f.Start == nil {
				continue
			}
			st = h.start(ctx, f.StreamSID, f.Start)
		case "media":
			if st == nil || f.Media == nil {
				continue
			}
			if f.Media.Track != "" && f.Media.Track != "inbound" {
				continue
			}
			chunk, err := f.Media.audio()
			if err != nil {
				log.Debug("media stream: bad payload", "stream_sid", st.sid, "error", err)
				continue
			}
			st.write(chunk)
		case "stop":
			return
		}
	}
}

func (h *Handler) start(ctx context.Context, sid string, s *startFrame) *stream {
	st := &stream{
		sid:        sid,
		callID:     s.callID(),
		language:   s.language(),
		sampleRate: s.sampleRate(),
		maxBuffer:  h.cfg.MaxBuffer,
		startedAt:  time.Now(),
		log:        logger.FromOr(ctx, h.log).With("stream_sid", sid, "call_sid", s.callID()),
	}
	if st.language == "" && h.cfg.Store != nil {
		if cs, err := h.cfg.Store.Get(st.callID); err == nil {
			st.language = cs.Language
		}
	}

	if h.cfg.Streaming != nil {
		sess, err := h.cfg.Streaming.Open(ctx, speech.StreamOptions{
			Language:   st.language,
			SampleRate: st.sampleRate,
		})
		if err != nil {
			st.log.Warn("streaming provider unavailable, buffering for batch", "provider", h.cfg.Streaming.Name(), "error", err)
		} else {
			st.live = sess
			st.pumpDone = make(chan struct{})
			go h.pump(st)
		}
	}

	h.registry.add(st)
	st.log.Info("media stream started", "language", st.language, "live", st.live != nil)
	return st
}

// pump records final results from the provider until its events close.
func (h *Handler) pump(st *stream) {
	defer close(st.pumpDone)
	for ev := range st.live.Events() {
		if ev.Err != nil {
			st.log.Warn("streaming provider error", "error", ev.Err)
			st.degrade()
			continue
		}
		if !ev.IsFinal {
			continue
		}
		h.record(st, ev.Text)
	}
}

func (h *Handler) record(st *stream, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	st.log.Info("live transcript", "text", logger.Truncate(text, 120))
	if h.cfg.Store == nil {
		return
	}
	if err := h.cfg.Store.AppendTranscript(st.callID, text); err != nil && !errors.Is(err, session.ErrNotFound) {
		st.log.Warn("transcript append failed", "error", err)
	}
}

// finish closes the provider session and, when live transcription was not
// available for the whole call, transcribes the buffered audio in one batch.
func (h *Handler) finish(ctx context.Context, st *stream) {
	h.registry.remove(st.sid)

	if st.live != nil {
		_ = st.live.Close()
		<-st.pumpDone
	}

	audio, needBatch := st.fallbackAudio()
	st.log.Info("media stream stopped", "duration", time.Since(st.startedAt).Round(time.Millisecond), "fallback_bytes", len(audio))
	if !needBatch || len(audio) == 0 || h.cfg.Batch == nil {
		return
	}

	bctx, cancel := context.WithTimeout(ctx, h.cfg.BatchTimeout)
	defer cancel()
	tr, err := h.cfg.Batch.Transcribe(bctx, speech.MulawToWAV(audio, st.sampleRate), st.language)
	if err != nil {
		st.log.Warn("fallback transcription failed", "provider", h.cfg.Batch.Name(), "error", err)
		return
	}
	h.record(st, tr.Text)
}

// stream is one carrier media stream.
type stream struct {
	sid        string
	callID     string
	language   string
	sampleRate int
	maxBuffer  int
	startedAt  time.Time
	log        *slog.Logger

	live     speech.StreamSession
	pumpDone chan struct{}

	mu       sync.Mutex
	degraded bool
	buf      []byte
}

func (s *stream) write(chunk []byte) {
	s.mu.Lock()
	buffer := s.live == nil || s.degraded
	if buffer && len(s.buf) < s.maxBuffer {
		n := min(len(chunk), s.maxBuffer-len(s.buf))
		s.buf = append(s.buf, chunk[:n]...)
	}
	s.mu.Unlock()

	if buffer {
		return
	}
	if err := s.live.Send(chunk); err != nil {
		s.log.Warn("streaming send failed, buffering for batch", "error", err)
		s.degrade()
	}
}

func (s *stream) degrade() {
	s.mu.Lock()
	s.degraded = true
	s.mu.Unlock()
}

func (s *stream) fallbackAudio() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf, s.live == nil || s.degraded
}

// Registry tracks active streams by stream sid.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*stream
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*stream)}
}

func (r *Registry) add(s *stream) {
	r.mu.Lock()
	r.streams[s.sid] = s
	r.mu.Unlock()
}

func (r *Registry) remove(sid string) {
	r.mu.Lock()
	delete(r.streams, sid)
	r.mu.Unlock()
}

// Active counts open streams.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// Calls lists the call ids with an open stream, sorted.
func (r *Registry) Calls() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s.callID)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}
