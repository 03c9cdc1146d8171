// Package speech is the transcription boundary. Providers come in two
// profiles: streaming (live carrier audio) and batch (a finished recording).
package speech

import (
	"context"
	"errors"
)

var (
	ErrTimeout       = errors.New("speech: provider timeout")
	ErrSessionClosed = errors.New("speech: stream session closed")
	ErrEmptyAudio    = errors.New("speech: empty audio")
)

// StreamOptions describes the audio a streaming session will receive.
type StreamOptions struct {
	// Language is an internal code such as "es"; providers map it themselves.
	Language   string
	Encoding   string
	SampleRate int
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.Encoding == "" {
		o.Encoding = "mulaw"
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 8000
	}
	return o
}

// TranscriptEvent is one partial or final result from a streaming session.
// Provider failures after Open arrive as events with Err set.
type TranscriptEvent struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Err        error
}

// StreamSession is one provider connection for one call.
// Events is closed after Close returns or the provider disconnects.
type StreamSession interface {
	Send(chunk []byte) error
	Events() <-chan TranscriptEvent
	Close() error
}

type StreamingProvider interface {
	Name() string
	Open(ctx context.Context, opts StreamOptions) (StreamSession, error)
}

// Transcript is the single result of a batch transcription.
type Transcript struct {
	Text     string
	Language string
}

type BatchProvider interface {
	Name() string
	// Transcribe takes a complete WAV file.
	Transcribe(ctx context.Context, wav []byte, language string) (Transcript, error)
}

// classify maps a transport error to ErrTimeout when the caller's deadline expired.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}
