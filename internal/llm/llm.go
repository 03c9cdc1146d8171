// Package llm is the language-model boundary used for spoken replies and for
// the asynchronous follow-ups the drainer sends.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTimeout       = errors.New("llm: timeout")
	ErrEmptyReply    = errors.New("llm: empty reply")
	ErrNotConfigured = errors.New("llm: not configured")
)

// Request is one caller utterance with the context the model needs.
type Request struct {
	Utterance  string
	Language   string
	CallerName string
	// Spoken selects the terse phone style; false allows longer written replies.
	Spoken bool
}

// Client produces a reply for a Request. Implementations must honour ctx
// deadlines and report an expired deadline as ErrTimeout.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ca": "Catalan",
}

const defaultSystemPrompt = "You are a helpful personal assistant."

// SystemPrompt extends base with language and delivery instructions.
func SystemPrompt(base string, req Request) string {
	if strings.TrimSpace(base) == "" {
		base = defaultSystemPrompt
	}
	lang, ok := languageNames[req.Language]
	if !ok {
		lang = "the caller's language"
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))
	fmt.Fprintf(&b, " Always answer in %s.", lang)
	if req.CallerName != "" {
		fmt.Fprintf(&b, " You are talking to %s.", req.CallerName)
	}
	if req.Spoken {
		b.WriteString(" Your answer will be read aloud on a phone call: use two or three short sentences of plain text, no lists, no markdown, no code.")
	}
	return b.String()
}

// Unavailable is the Client used when no backend is configured.
type Unavailable struct{}

func (Unavailable) Complete(context.Context, Request) (string, error) {
	return "", ErrNotConfigured
}

func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}
