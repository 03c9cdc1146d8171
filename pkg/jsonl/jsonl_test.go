package jsonl

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type row struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func TestAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rows.jsonl")

	for _, r := range []row{{ID: "a", Text: "one"}, {ID: "b", Text: "two"}} {
		if err := Append(path, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, skipped, err := ReadAll[row](path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if skipped != 0 || len(got) != 2 || got[0].ID != "a" || got[1].Text != "two" {
		t.Fatalf("unexpected rows %+v skipped=%d", got, skipped)
	}
}

func TestReadAllMissingFile(t *testing.T) {
	got, _, err := ReadAll[row](filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty read, got %v %v", got, err)
	}
}

func TestReadAllSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	data := "{\"id\":\"a\"}\nnot-json\n\n{\"id\":\"b\"}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, skipped, err := ReadAll[row](path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || skipped != 1 {
		t.Fatalf("expected 2 rows and 1 skipped, got %d/%d", len(got), skipped)
	}
}

func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Append(path, row{ID: "x", Text: "some longer payload to widen the write"})
		}()
	}
	wg.Wait()

	got, skipped, err := ReadAll[row](path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 50 || skipped != 0 {
		t.Fatalf("expected 50 clean rows, got %d (skipped %d)", len(got), skipped)
	}
}

func TestLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.lock")
	l, err := AcquireLock(path, true)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil release: %v", err)
	}
}
