// Package escalation is the file-backed hand-off between the webhook process,
// which appends requests it could not answer in time, and the drainer process,
// which answers them out of band.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"callbridge/pkg/jsonl"
)

const (
	pendingFile   = "pending.jsonl"
	processedFile = "processed.jsonl"
	lockFile      = "queue.lock"
	drainPrefix   = "draining-"
)

var ErrInvalidEntry = errors.New("escalation: message and caller number are required")

// Queue is safe for concurrent use within a process and across processes
// sharing dir. Appenders hold a shared flock; Drain holds it exclusively while
// it renames the pending file aside, so no append straddles a drain.
type Queue struct {
	dir   string
	clock func() time.Time
}

func NewQueue(dir string) *Queue {
	return &Queue{dir: dir, clock: time.Now}
}

func (q *Queue) PendingPath() string   { return filepath.Join(q.dir, pendingFile) }
func (q *Queue) ProcessedPath() string { return filepath.Join(q.dir, processedFile) }
func (q *Queue) lockPath() string      { return filepath.Join(q.dir, lockFile) }

// Enqueue appends e to the pending file, assigning an id and timestamp.
func (q *Queue) Enqueue(ctx context.Context, e Entry) (Entry, error) {
	if strings.TrimSpace(e.Message) == "" || e.CallerNumber == "" {
		return Entry{}, ErrInvalidEntry
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = q.clock().UTC()
	}

	lock, err := jsonl.AcquireLock(q.lockPath(), false)
	if err != nil {
		return Entry{}, fmt.Errorf("escalation: enqueue: %w", err)
	}
	defer lock.Release()

	if err := jsonl.Append(q.PendingPath(), e); err != nil {
		return Entry{}, fmt.Errorf("escalation: enqueue: %w", err)
	}
	return e, nil
}

// Pending lists queued entries without consuming them.
func (q *Queue) Pending() ([]Entry, error) {
	lock, err := jsonl.AcquireLock(q.lockPath(), false)
	if err != nil {
		return nil, fmt.Errorf("escalation: pending: %w", err)
	}
	defer lock.Release()

	entries, _, err := jsonl.ReadAll[Entry](q.PendingPath())
	return entries, err
}

// Batch is a set of drained entries whose files are removed by Commit.
type Batch struct {
	Entries []Entry
	Skipped int
	files   []string
}

// Drain claims every pending entry. It returns nil when there is nothing to
// do, in which case no file is touched. Batches left behind by a drainer that
// died before Commit are picked up first.
func (q *Queue) Drain() (*Batch, error) {
	if idle, err := q.idle(); err != nil || idle {
		return nil, err
	}

	lock, err := jsonl.AcquireLock(q.lockPath(), true)
	if err != nil {
		return nil, fmt.Errorf("escalation: drain: %w", err)
	}
	defer lock.Release()

	files, err := q.leftovers()
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(q.PendingPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("escalation: drain: %w", err)
	case info.Size() > 0:
		name := filepath.Join(q.dir, drainPrefix+strconv.FormatInt(q.clock().UnixNano(), 10)+".jsonl")
		if err := os.Rename(q.PendingPath(), name); err != nil {
			return nil, fmt.Errorf("escalation: drain: rename: %w", err)
		}
		files = append(files, name)
	}

	if len(files) == 0 {
		return nil, nil
	}

	b := &Batch{files: files}
	for _, f := range files {
		entries, skipped, err := jsonl.ReadAll[Entry](f)
		if err != nil {
			return nil, fmt.Errorf("escalation: drain: %w", err)
		}
		b.Entries = append(b.Entries, entries...)
		b.Skipped += skipped
	}
	return b, nil
}

// idle reports, without locking, that there is nothing to drain.
func (q *Queue) idle() (bool, error) {
	files, err := q.leftovers()
	if err != nil || len(files) > 0 {
		return false, err
	}
	info, err := os.Stat(q.PendingPath())
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("escalation: drain: %w", err)
	}
	return info.Size() == 0, nil
}

func (q *Queue) leftovers() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(q.dir, drainPrefix+"*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("escalation: drain: %w", err)
	}
	// Names embed a nanosecond timestamp; equal widths sort chronologically.
	sort.Strings(matches)
	return matches, nil
}

// MarkProcessed appends p to the processed log.
func (q *Queue) MarkProcessed(p Processed) error {
	if p.ProcessedAt.IsZero() {
		p.ProcessedAt = q.clock().UTC()
	}
	if err := jsonl.Append(q.ProcessedPath(), p); err != nil {
		return fmt.Errorf("escalation: processed log: %w", err)
	}
	return nil
}

// Commit removes the files backing b.
func (q *Queue) Commit(b *Batch) error {
	if b == nil {
		return nil
	}
	var errs []error
	for _, f := range b.files {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Requeue puts rest back at the head of the pending file and removes the
// files backing b. Entries appended since the drain stay behind rest. An empty
// rest is a plain Commit.
func (q *Queue) Requeue(b *Batch, rest []Entry) error {
	if b == nil {
		return nil
	}
	if len(rest) == 0 {
		return q.Commit(b)
	}

	lock, err := jsonl.AcquireLock(q.lockPath(), true)
	if err != nil {
		return fmt.Errorf("escalation: requeue: %w", err)
	}
	defer lock.Release()

	newer, _, err := jsonl.ReadAll[Entry](q.PendingPath())
	if err != nil {
		return fmt.Errorf("escalation: requeue: %w", err)
	}
	tmp := q.PendingPath() + ".tmp"
	_ = os.Remove(tmp)
	for _, e := range append(append([]Entry(nil), rest...), newer...) {
		if err := jsonl.Append(tmp, e); err != nil {
			return fmt.Errorf("escalation: requeue: %w", err)
		}
	}
	if err := os.Rename(tmp, q.PendingPath()); err != nil {
		return fmt.Errorf("escalation: requeue: rename: %w", err)
	}
	return q.Commit(b)
}

// ProcessedEntries reads the processed log.
func (q *Queue) ProcessedEntries() ([]Processed, error) {
	out, _, err := jsonl.ReadAll[Processed](q.ProcessedPath())
	return out, err
}
