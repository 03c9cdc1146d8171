package audit

import (
	"context"
	"path/filepath"
	"testing"

	"callbridge/pkg/jsonl"
)

func TestService_AppendRequiresTypeAndSubject(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{CallerNumber: "+15550001111"}); err == nil {
		t.Fatalf("expected error for missing type")
	}
	if err := svc.Append(context.Background(), Event{Type: EventTypeWrongPin}); err == nil {
		t.Fatalf("expected error for missing caller and actor")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogCaller(context.Background(), EventTypeWrongPin, "+15550001111", "CA1", "2 attempts remaining"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
	if evs[0].Type != EventTypeWrongPin || evs[0].CallID != "CA1" {
		t.Fatalf("unexpected event %+v", evs[0])
	}
}

func TestFileRepo_AppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	svc := NewService(NewFileRepo(path))

	_ = svc.LogCaller(context.Background(), EventTypeUnauthorized, "+15551230000", "CA2", "")
	_ = svc.LogAdminRead(context.Background(), "ops@example.com", "listed pending escalations")

	evs, skipped, err := jsonl.ReadAll[Event](path)
	if err != nil || skipped != 0 {
		t.Fatalf("read: %v skipped=%d", err, skipped)
	}
	if len(evs) != 2 || evs[0].Type != EventTypeUnauthorized || evs[1].Actor != "ops@example.com" {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestNilServiceIsSafe(t *testing.T) {
	var svc *Service
	if err := svc.LogCaller(context.Background(), EventTypePinOK, "+1", "", ""); err == nil {
		t.Fatalf("expected error from nil service")
	}
}
