package escalation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"callbridge/internal/llm"
	"callbridge/internal/notify"
	"callbridge/pkg/logger"
)

const sendTimeout = 30 * time.Second

// Stats summarises one drain pass.
type Stats struct {
	Drained   int
	Delivered int
	Failed    int
	Skipped   int
	// Requeued counts entries returned to the pending file unanswered
	// because the pass was cancelled.
	Requeued int
}

// Worker answers drained entries with the language model and delivers each
// answer once through the configured notifier. Entries are never re-queued.
type Worker struct {
	queue        *Queue
	llm          llm.Client
	notifier     notify.Notifier
	asyncTimeout time.Duration
	log          *slog.Logger
	clock        func() time.Time
}

// NewWorker builds a Worker. A nil notifier disables delivery: entries are
// still answered and recorded as processed.
func NewWorker(q *Queue, client llm.Client, n notify.Notifier, asyncTimeout time.Duration, log *slog.Logger) *Worker {
	if client == nil {
		client = llm.Unavailable{}
	}
	if log == nil {
		log = slog.Default()
	}
	if asyncTimeout <= 0 {
		asyncTimeout = 90 * time.Second
	}
	return &Worker{queue: q, llm: client, notifier: n, asyncTimeout: asyncTimeout, log: log, clock: time.Now}
}

// RunOnce drains the queue a single time.
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	var st Stats
	batch, err := w.queue.Drain()
	if err != nil || batch == nil {
		return st, err
	}
	st.Drained = len(batch.Entries)
	st.Skipped = batch.Skipped
	if batch.Skipped > 0 {
		w.log.Warn("escalation: skipped malformed queue lines", "count", batch.Skipped)
	}

	var errs []error
	done := 0
	for _, e := range batch.Entries {
		if ctx.Err() != nil {
			break
		}
		p, interrupted := w.process(ctx, e)
		if interrupted {
			break
		}
		done++
		if p.Delivered {
			st.Delivered++
		} else {
			st.Failed++
		}
		if err := w.queue.MarkProcessed(p); err != nil {
			errs = append(errs, err)
		}
	}
	rest := batch.Entries[done:]
	st.Requeued = len(rest)

	// A batch whose processed log could not be written is kept on disk and
	// picked up again on the next pass.
	if len(errs) == 0 {
		if err := w.queue.Requeue(batch, rest); err != nil {
			errs = append(errs, err)
		}
	}

	w.log.Info("escalation: drain complete",
		"drained", st.Drained, "delivered", st.Delivered, "failed", st.Failed, "requeued", st.Requeued)
	return st, errors.Join(errs...)
}

// process answers and delivers e. interrupted reports that ctx ended before
// the model answered, in which case nothing was sent and e stays queued.
func (w *Worker) process(ctx context.Context, e Entry) (p Processed, interrupted bool) {
	p = Processed{Entry: e}
	log := w.log.With("entry_id", e.ID, "caller", e.CallerNumber, "kind", e.Kind)

	actx, cancel := context.WithTimeout(ctx, w.asyncTimeout)
	answer, err := w.llm.Complete(actx, llm.Request{
		Utterance:  e.Message,
		Language:   e.Language,
		CallerName: e.CallerName,
	})
	cancel()
	if err != nil && ctx.Err() != nil {
		log.Info("escalation: pass cancelled before answer, keeping entry queued")
		return p, true
	}
	if err != nil {
		log.Error("escalation: llm failed", "error", err)
		p.Error = err.Error()
		p.ProcessedAt = w.clock().UTC()
		return p, false
	}

	if w.notifier == nil {
		log.Info("escalation: answer ready, delivery disabled", "answer", logger.Truncate(answer, 120))
		p.Error = "delivery disabled"
		p.ProcessedAt = w.clock().UTC()
		return p, false
	}

	// An answered entry is delivered even if shutdown started meanwhile.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	p.Channel = w.notifier.Name()
	err = w.notifier.Send(sctx, notify.Notification{
		ID:              e.ID,
		CallerNumber:    e.CallerNumber,
		CallerName:      e.CallerName,
		Language:        e.Language,
		DestinationHint: e.DestinationHint,
		Question:        e.Message,
		Answer:          answer,
	})
	if err != nil {
		log.Error("escalation: delivery failed", "channel", p.Channel, "error", err)
		p.Error = err.Error()
	} else {
		p.Delivered = true
		log.Info("escalation: delivered", "channel", p.Channel)
	}
	p.ProcessedAt = w.clock().UTC()
	return p, false
}

// Run drains immediately and then every interval until ctx is done.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Error("escalation: drain pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
