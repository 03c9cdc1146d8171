// Package respond turns a caller utterance into the text spoken back on the
// call, deferring to the escalation queue when the model is too slow.
package respond

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"callbridge/internal/escalation"
	"callbridge/internal/llm"
	"callbridge/internal/messages"
	"callbridge/internal/session"
	"callbridge/pkg/logger"
)

// Enqueuer accepts requests for asynchronous follow-up.
type Enqueuer interface {
	Enqueue(ctx context.Context, e escalation.Entry) (escalation.Entry, error)
}

type Config struct {
	FirstTimeout  time.Duration
	RetryTimeout  time.Duration
	MaxReplyChars int
	// DestinationHint is stored on queued entries for the notifier.
	DestinationHint string
}

func (c Config) withDefaults() Config {
	out := c
	if out.FirstTimeout <= 0 {
		out.FirstTimeout = 5 * time.Second
	}
	if out.RetryTimeout <= 0 {
		out.RetryTimeout = 8 * time.Second
	}
	if out.MaxReplyChars <= 0 {
		out.MaxReplyChars = 600
	}
	return out
}

// Outcome says which path produced a Reply.
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeRetried   Outcome = "retried"
	OutcomeEscalated Outcome = "escalated"
	OutcomeFailed    Outcome = "failed"
)

type Reply struct {
	Text    string
	Outcome Outcome
}

type Orchestrator struct {
	cfg   Config
	llm   llm.Client
	queue Enqueuer
	log   *slog.Logger
}

func New(cfg Config, client llm.Client, queue Enqueuer, log *slog.Logger) *Orchestrator {
	if client == nil {
		client = llm.Unavailable{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{cfg: cfg.withDefaults(), llm: client, queue: queue, log: log}
}

// Respond always returns speakable text in the session language. At most one
// queue entry is written per call.
func (o *Orchestrator) Respond(ctx context.Context, utterance string, cs session.CallSession) Reply {
	lang := cs.Language
	log := logger.FromOr(ctx, o.log).With("call_sid", cs.ID, "utterance", logger.Truncate(utterance, 80))

	req := llm.Request{Utterance: utterance, Language: lang, CallerName: cs.CallerName, Spoken: true}

	text, err := o.attempt(ctx, req, o.cfg.FirstTimeout)
	if err == nil {
		log.Info("respond: answered", "attempt", 1, "reply", logger.Truncate(text, 80))
		return Reply{Text: text, Outcome: OutcomeAnswered}
	}
	if !errors.Is(err, llm.ErrTimeout) {
		log.Error("respond: llm failed", "attempt", 1, "error", err)
		return Reply{Text: messages.Text(lang, messages.ReplyFailed), Outcome: OutcomeFailed}
	}
	log.Warn("respond: first attempt timed out", "timeout", o.cfg.FirstTimeout)

	text, err = o.attempt(ctx, req, o.cfg.RetryTimeout)
	if err == nil {
		log.Info("respond: answered on retry", "attempt", 2, "reply", logger.Truncate(text, 80))
		return Reply{Text: messages.Text(lang, messages.DelayApology) + " " + text, Outcome: OutcomeRetried}
	}
	if !errors.Is(err, llm.ErrTimeout) {
		log.Error("respond: llm failed", "attempt", 2, "error", err)
		return Reply{Text: messages.Text(lang, messages.ReplyFailed), Outcome: OutcomeFailed}
	}
	log.Warn("respond: retry timed out, escalating", "timeout", o.cfg.RetryTimeout)

	if o.queue == nil {
		return Reply{Text: messages.Text(lang, messages.ReplyFailed), Outcome: OutcomeFailed}
	}
	// The caller may have hung up; the entry must still be written.
	e, qerr := o.queue.Enqueue(context.WithoutCancel(ctx), escalation.Entry{
		Message:         utterance,
		Language:        lang,
		CallerNumber:    cs.CallerNumber,
		CallerName:      cs.CallerName,
		DestinationHint: o.cfg.DestinationHint,
		Kind:            escalation.KindTimeout,
	})
	if qerr != nil {
		log.Error("respond: enqueue failed", "error", qerr)
		return Reply{Text: messages.Text(lang, messages.ReplyFailed), Outcome: OutcomeFailed}
	}
	log.Info("respond: escalated", "entry_id", e.ID)
	return Reply{Text: messages.Text(lang, messages.FollowUp), Outcome: OutcomeEscalated}
}

func (o *Orchestrator) attempt(ctx context.Context, req llm.Request, timeout time.Duration) (string, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	text, err := o.llm.Complete(actx, req)
	if err == nil {
		text = Sanitize(text, o.cfg.MaxReplyChars)
		if text == "" {
			return "", llm.ErrEmptyReply
		}
		return text, nil
	}
	// Some clients surface an expired deadline without ErrTimeout.
	if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, llm.ErrTimeout) {
		return "", errors.Join(llm.ErrTimeout, err)
	}
	return "", err
}
