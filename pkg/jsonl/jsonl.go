// Package jsonl holds the append-only line-delimited JSON files shared by the
// webhook process and the drainer, plus the advisory lock that orders them.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const maxLineBytes = 1 << 20

// Append writes v as one JSON line. The line is written with a single write
// on an O_APPEND descriptor so concurrent appenders never interleave.
func Append(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jsonl: marshal: %w", err)
	}
	b = append(b, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("jsonl: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("jsonl: open: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("jsonl: write: %w", err)
	}
	return f.Close()
}

// Each calls fn for every non-blank line of path in file order.
// A missing file yields no lines and no error.
func Each(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jsonl: open: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("jsonl: scan: %w", err)
	}
	return nil
}

// ReadAll decodes every line of path into T. Lines that fail to decode are
// counted in skipped and otherwise ignored.
func ReadAll[T any](path string) (out []T, skipped int, err error) {
	err = Each(path, func(line []byte) error {
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			skipped++
			return nil
		}
		out = append(out, v)
		return nil
	})
	return out, skipped, err
}

// Lock is an advisory flock held on a sidecar lock file.
type Lock struct {
	f *os.File
}

// AcquireLock blocks until the lock at path is held. Exclusive locks exclude
// every other holder; shared locks exclude only exclusive holders.
func AcquireLock(path string, exclusive bool) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open lock: %w", err)
	}
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err = unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("jsonl: flock: %w", err)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. Safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
