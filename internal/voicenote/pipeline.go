package voicenote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"callbridge/internal/messages"
	"callbridge/internal/session"
	"callbridge/internal/speech"
	"callbridge/pkg/logger"
)

// Fetcher downloads a finished carrier recording.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Recording is the carrier's description of a completed recording.
type Recording struct {
	URL             string
	ID              string
	DurationSeconds int
}

// Result is the stored note and the text to speak before hanging up.
type Result struct {
	Note    Note
	Message string
	Err     error
}

// Pipeline downloads, stores and transcribes voice notes. Mirror is optional
// and best-effort.
type Pipeline struct {
	fetcher    Fetcher
	store      *FileStore
	mirror     Index
	transcribe speech.BatchProvider
	timeout    time.Duration
	budget     time.Duration
	log        *slog.Logger
	clock      func() time.Time
}

type PipelineConfig struct {
	Fetcher Fetcher
	Store   *FileStore
	Mirror  Index
	Batch   speech.BatchProvider
	Timeout time.Duration
	// Budget bounds download plus transcription. The note is stored pending
	// when transcription does not finish inside it.
	Budget time.Duration
}

// mirrorTimeout bounds the best-effort mirror write after the budget.
const mirrorTimeout = 2 * time.Second

func NewPipeline(cfg PipelineConfig, log *slog.Logger) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		fetcher:    cfg.Fetcher,
		store:      cfg.Store,
		mirror:     cfg.Mirror,
		transcribe: cfg.Batch,
		timeout:    cfg.Timeout,
		budget:     cfg.Budget,
		log:        log,
		clock:      time.Now,
	}
}

// Process always returns a speakable message. Result.Err is set when the note
// could not be stored.
func (p *Pipeline) Process(ctx context.Context, rec Recording, cs session.CallSession) Result {
	lang := cs.Language
	log := logger.FromOr(ctx, p.log).With("call_sid", cs.ID, "recording_sid", rec.ID)
	fail := func(err error) Result {
		log.Error("voicenote: pipeline failed", "error", err)
		return Result{Message: messages.Text(lang, messages.VoiceNoteFailed), Err: err}
	}

	if rec.URL == "" {
		return fail(errors.New("voicenote: recording url missing"))
	}
	if p.fetcher == nil || p.store == nil {
		return fail(errors.New("voicenote: pipeline not configured"))
	}

	// The caller is waiting on this webhook for the confirmation.
	bctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	audio, err := p.fetcher.Fetch(bctx, rec.URL)
	if err != nil {
		return fail(fmt.Errorf("voicenote: download: %w", err))
	}
	if len(audio) == 0 {
		return fail(speech.ErrEmptyAudio)
	}
	if !speech.IsWAV(audio) {
		audio = speech.MulawToWAV(audio, 8000)
	}

	n := Note{
		ID:              uuid.NewString(),
		CallID:          cs.ID,
		CallerNumber:    cs.CallerNumber,
		CallerName:      cs.CallerName,
		Language:        lang,
		RecordingID:     rec.ID,
		DurationSeconds: rec.DurationSeconds,
		Status:          StatusPending,
		CreatedAt:       p.clock().UTC(),
	}
	if n.AudioFile, err = p.store.SaveAudio(n.ID, audio); err != nil {
		return fail(err)
	}

	if p.transcribe != nil {
		tctx, tcancel := context.WithTimeout(bctx, p.timeout)
		tr, terr := p.transcribe.Transcribe(tctx, audio, lang)
		tcancel()
		switch {
		case terr != nil:
			log.Warn("voicenote: transcription failed, keeping note pending", "provider", p.transcribe.Name(), "error", terr)
		case tr.Text == "":
			log.Warn("voicenote: empty transcript, keeping note pending", "provider", p.transcribe.Name())
		default:
			n.Transcript = tr.Text
			n.Status = StatusTranscribed
		}
	}

	// The note is kept even when the budget ran out during transcription.
	if err := p.store.Save(context.WithoutCancel(ctx), n); err != nil {
		return fail(err)
	}
	if p.mirror != nil {
		mctx, mcancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
		if err := p.mirror.Save(mctx, n); err != nil {
			log.Warn("voicenote: mirror write failed", "error", err)
		}
		mcancel()
	}

	log.Info("voicenote: saved", "note_id", n.ID, "status", n.Status, "transcript", logger.Truncate(n.Transcript, 80))
	key := messages.VoiceNotePending
	if n.Status == StatusTranscribed {
		key = messages.VoiceNoteSaved
	}
	return Result{Note: n, Message: messages.Text(lang, key)}
}
