package speech

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WhisperConfig configures the OpenAI-compatible transcription endpoint.
type WhisperConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func (c WhisperConfig) withDefaults() WhisperConfig {
	out := c
	if out.BaseURL == "" {
		out.BaseURL = "https://api.openai.com/v1"
	}
	if out.Model == "" {
		out.Model = "whisper-1"
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	return out
}

// Whisper is a batch-only provider.
type Whisper struct {
	cfg  WhisperConfig
	http *resty.Client
}

var _ BatchProvider = (*Whisper)(nil)

func NewWhisper(cfg WhisperConfig) *Whisper {
	cfg = cfg.withDefaults()
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey)
	return &Whisper{cfg: cfg, http: client}
}

func (w *Whisper) Name() string { return "whisper" }

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

func (w *Whisper) Transcribe(ctx context.Context, wav []byte, language string) (Transcript, error) {
	if len(wav) == 0 {
		return Transcript{}, ErrEmptyAudio
	}
	form := map[string]string{
		"model":           w.cfg.Model,
		"response_format": "verbose_json",
	}
	if lang := WhisperLanguage(language); lang != "" {
		form["language"] = lang
	}

	var out whisperResponse
	resp, err := w.http.R().
		SetContext(ctx).
		SetFileReader("file", "audio.wav", bytes.NewReader(wav)).
		SetFormData(form).
		SetResult(&out).
		Post("/audio/transcriptions")
	if err != nil {
		return Transcript{}, classify(ctx, fmt.Errorf("whisper: transcribe: %w", err))
	}
	if resp.IsError() {
		return Transcript{}, fmt.Errorf("whisper: transcribe: status %d", resp.StatusCode())
	}

	lang := internalLanguage(out.Language)
	if lang == "" {
		lang = language
	}
	return Transcript{Text: out.Text, Language: lang}, nil
}
