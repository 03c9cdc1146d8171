package security

import (
	"context"
	"testing"
	"time"

	"callbridge/internal/audit"
	"callbridge/internal/session"
)

func newTestGate(t *testing.T, ceiling int) (*Gate, *audit.MemoryRepo) {
	t.Helper()
	repo := audit.NewMemoryRepo()
	g := NewGate(
		[]Entry{
			{Number: "+15550001111", PIN: "123456", Name: "Ana"},
			{Number: "+15550001111", PIN: "999999", Name: "Shadow"},
		},
		3,
		NewMemoryLimiter(time.Hour, ceiling),
		audit.NewService(repo),
		nil,
	)
	return g, repo
}

func TestAuthorize_UnknownCallerIsUnauthorized(t *testing.T) {
	g, repo := newTestGate(t, 5)
	d := g.Authorize(context.Background(), "+15551230000", "CA1")
	if d.Allowed || d.Reason != ReasonUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", d)
	}
	evs := repo.ByCaller("+15551230000")
	if len(evs) != 1 || evs[0].Type != audit.EventTypeUnauthorized {
		t.Fatalf("expected one unauthorized audit event, got %+v", evs)
	}
}

func TestAuthorize_FirstAllowlistEntryWins(t *testing.T) {
	g, _ := newTestGate(t, 5)
	d := g.Authorize(context.Background(), "+15550001111", "CA1")
	if !d.Allowed || d.CallerName != "Ana" || d.PIN != "123456" {
		t.Fatalf("expected first entry, got %+v", d)
	}
}

func TestAuthorize_RateLimitAppliesToAuthorizedCallers(t *testing.T) {
	g, _ := newTestGate(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d := g.Authorize(ctx, "+15550001111", "CA"); !d.Allowed {
			t.Fatalf("call %d: expected allowed, got %+v", i, d)
		}
	}
	d := g.Authorize(ctx, "+15550001111", "CA")
	if d.Allowed || d.Reason != ReasonRateLimited {
		t.Fatalf("expected rate_limited, got %+v", d)
	}
}

func TestAuthorize_UnauthorizedCallsDoNotConsumeBudget(t *testing.T) {
	lim := NewMemoryLimiter(time.Hour, 1)
	g := NewGate([]Entry{{Number: "+15550001111", PIN: "1"}}, 3, lim, nil, nil)
	for i := 0; i < 5; i++ {
		g.Authorize(context.Background(), "+15551230000", "CA")
	}
	if len(lim.shardFor("+15551230000").counters) != 0 {
		t.Fatalf("expected no counter for rejected number")
	}
}

func TestVerifyPin_CorrectPin(t *testing.T) {
	g, _ := newTestGate(t, 5)
	cs := &session.CallSession{ID: "CA1", CallerNumber: "+15550001111"}
	res := g.VerifyPin(context.Background(), cs, "123456")
	if !res.OK || res.AttemptsRemaining != 3 || cs.PinAttempts != 0 {
		t.Fatalf("expected ok with no attempt used, got %+v attempts=%d", res, cs.PinAttempts)
	}
}

func TestVerifyPin_CorrectOnLastAttempt(t *testing.T) {
	g, _ := newTestGate(t, 5)
	cs := &session.CallSession{ID: "CA1", CallerNumber: "+15550001111", PinAttempts: 2}
	if res := g.VerifyPin(context.Background(), cs, "123456"); !res.OK {
		t.Fatalf("expected ok on attempt k <= max, got %+v", res)
	}
}

func TestVerifyPin_ExhaustsAfterMaxAttempts(t *testing.T) {
	g, repo := newTestGate(t, 5)
	ctx := context.Background()
	cs := &session.CallSession{ID: "CA1", CallerNumber: "+15550001111"}

	r1 := g.VerifyPin(ctx, cs, "000000")
	r2 := g.VerifyPin(ctx, cs, "111111")
	r3 := g.VerifyPin(ctx, cs, "222222")

	if r1.OK || r1.Exhausted || r1.AttemptsRemaining != 2 {
		t.Fatalf("unexpected first result %+v", r1)
	}
	if r2.Exhausted || r2.AttemptsRemaining != 1 {
		t.Fatalf("unexpected second result %+v", r2)
	}
	if !r3.Exhausted || r3.OK {
		t.Fatalf("expected exhausted, got %+v", r3)
	}
	if cs.PinAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cs.PinAttempts)
	}

	evs := repo.Events()
	last := evs[len(evs)-1]
	if last.Type != audit.EventTypeMaxAttempts {
		t.Fatalf("expected max_attempts audit, got %s", last.Type)
	}
	if n := len(repo.ByType(audit.EventTypeWrongPin)); n != 2 {
		t.Fatalf("expected 2 wrong_pin events, got %d", n)
	}
	for _, e := range evs {
		if e.Message == "000000" || e.Message == "123456" {
			t.Fatalf("pin leaked into audit log: %+v", e)
		}
	}
}

func TestMemoryLimiter_WindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(time.Minute, 1)
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "k"); !ok {
		t.Fatalf("expected first call allowed")
	}
	if ok, _ := l.Allow(ctx, "k"); ok {
		t.Fatalf("expected second call rejected")
	}
	now = now.Add(time.Minute)
	if ok, _ := l.Allow(ctx, "k"); !ok {
		t.Fatalf("expected allowed after window lapses")
	}
	now = now.Add(2 * time.Minute)
	if n := l.Prune(); n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
}

func TestRedisLimiter_FallsBackWhenRedisMissing(t *testing.T) {
	l := NewRedisLimiter(nil, time.Minute, 1, nil)
	ctx := context.Background()
	if ok, err := l.Allow(ctx, "k"); !ok || err != nil {
		t.Fatalf("expected fallback allow, got %v %v", ok, err)
	}
	if ok, _ := l.Allow(ctx, "k"); ok {
		t.Fatalf("expected fallback window to enforce ceiling")
	}
}

func TestNormalizeNumber(t *testing.T) {
	cases := map[string]string{
		" +15550001111 ": "+15550001111",
		"15550001111":    "+15550001111",
		"1234":           "1234",
		"anonymous":      "anonymous",
	}
	for in, want := range cases {
		if got := normalizeNumber(in); got != want {
			t.Fatalf("normalizeNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckPinDoesNotAuditUntilRecorded(t *testing.T) {
	g, repo := newTestGate(t, 5)
	cs := &session.CallSession{ID: "CA1", CallerNumber: "+15550001111"}

	res := g.CheckPin(cs, "000000")
	if res.OK || cs.PinAttempts != 1 || len(repo.Events()) != 0 {
		t.Fatalf("unexpected check result %+v attempts=%d events=%d", res, cs.PinAttempts, len(repo.Events()))
	}
	g.RecordPin(context.Background(), *cs, res)
	if n := len(repo.ByType(audit.EventTypeWrongPin)); n != 1 {
		t.Fatalf("expected one wrong_pin event, got %d", n)
	}
}
