package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

// DeepgramConfig configures both Deepgram profiles.
type DeepgramConfig struct {
	APIKey    string
	BaseURL   string
	StreamURL string
	Model     string
	Timeout   time.Duration
	// CloseWait bounds how long Close waits for final results after CloseStream.
	CloseWait time.Duration
}

func (c DeepgramConfig) withDefaults() DeepgramConfig {
	out := c
	if out.BaseURL == "" {
		out.BaseURL = "https://api.deepgram.com"
	}
	if out.StreamURL == "" {
		out.StreamURL = "wss://api.deepgram.com/v1/listen"
	}
	if out.Model == "" {
		out.Model = "nova-2-phonecall"
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	if out.CloseWait <= 0 {
		out.CloseWait = 2 * time.Second
	}
	return out
}

// Deepgram implements both StreamingProvider and BatchProvider.
type Deepgram struct {
	cfg    DeepgramConfig
	http   *resty.Client
	dialer *websocket.Dialer
	log    *slog.Logger
}

var (
	_ StreamingProvider = (*Deepgram)(nil)
	_ BatchProvider     = (*Deepgram)(nil)
)

func NewDeepgram(cfg DeepgramConfig, log *slog.Logger) *Deepgram {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", "Token "+cfg.APIKey)
	return &Deepgram{
		cfg:    cfg,
		http:   client,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type deepgramLiveMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []deepgramAlternative `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
}

type deepgramBatchResponse struct {
	Results struct {
		Channels []struct {
			Alternatives     []deepgramAlternative `json:"alternatives"`
			DetectedLanguage string                `json:"detected_language"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends a finished recording to the prerecorded endpoint.
func (d *Deepgram) Transcribe(ctx context.Context, wav []byte, language string) (Transcript, error) {
	if len(wav) == 0 {
		return Transcript{}, ErrEmptyAudio
	}
	var out deepgramBatchResponse
	resp, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "audio/wav").
		SetQueryParams(map[string]string{
			"model":        d.cfg.Model,
			"language":     DeepgramLanguage(language),
			"punctuate":    "true",
			"smart_format": "true",
		}).
		SetBody(wav).
		SetResult(&out).
		Post("/v1/listen")
	if err != nil {
		return Transcript{}, classify(ctx, fmt.Errorf("deepgram: transcribe: %w", err))
	}
	if resp.IsError() {
		return Transcript{}, fmt.Errorf("deepgram: transcribe: status %d", resp.StatusCode())
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return Transcript{}, fmt.Errorf("deepgram: transcribe: no alternatives in response")
	}
	ch := out.Results.Channels[0]
	lang := language
	if ch.DetectedLanguage != "" {
		lang = internalLanguage(ch.DetectedLanguage)
	}
	return Transcript{Text: ch.Alternatives[0].Transcript, Language: lang}, nil
}

// Open dials a live transcription socket for one call.
func (d *Deepgram) Open(ctx context.Context, opts StreamOptions) (StreamSession, error) {
	opts = opts.withDefaults()
	u, err := url.Parse(d.cfg.StreamURL)
	if err != nil {
		return nil, fmt.Errorf("deepgram: stream url: %w", err)
	}
	q := u.Query()
	q.Set("model", d.cfg.Model)
	q.Set("language", DeepgramLanguage(opts.Language))
	q.Set("encoding", opts.Encoding)
	q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, classify(ctx, fmt.Errorf("deepgram: dial: status %d: %w", resp.StatusCode, err))
		}
		return nil, classify(ctx, fmt.Errorf("deepgram: dial: %w", err))
	}

	s := &deepgramSession{
		conn:      conn,
		events:    make(chan TranscriptEvent, 64),
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
		closeWait: d.cfg.CloseWait,
		log:       d.log,
	}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

type deepgramSession struct {
	conn      *websocket.Conn
	events    chan TranscriptEvent
	done      chan struct{}
	stop      chan struct{}
	closeWait time.Duration
	log       *slog.Logger

	writeMu   sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (s *deepgramSession) Events() <-chan TranscriptEvent { return s.events }

func (s *deepgramSession) Send(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("deepgram: send: %w", err)
	}
	return nil
}

// Close asks Deepgram to flush, waits briefly for the final results and
// tears the socket down. Safe to call more than once.
func (s *deepgramSession) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.closed = true
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		s.writeMu.Unlock()

		select {
		case <-s.done:
		case <-time.After(s.closeWait):
		}
		close(s.stop)
		_ = s.conn.Close()
		<-s.done
	})
	return nil
}

func (s *deepgramSession) emit(ev TranscriptEvent) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}

func (s *deepgramSession) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.writeMu.Lock()
			closing := s.closed
			s.writeMu.Unlock()
			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(TranscriptEvent{Err: fmt.Errorf("deepgram: read: %w", err)})
			}
			return
		}

		var msg deepgramLiveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("deepgram: ignoring undecodable message", "error", err)
			continue
		}
		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if strings.TrimSpace(alt.Transcript) == "" {
				continue
			}
			s.emit(TranscriptEvent{Text: alt.Transcript, IsFinal: msg.IsFinal, Confidence: alt.Confidence})
		case "Error":
			s.emit(TranscriptEvent{Err: fmt.Errorf("deepgram: provider error: %s", msg.Description)})
		}
	}
}
