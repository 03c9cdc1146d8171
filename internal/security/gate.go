// Package security decides who may use the service: allowlist lookup,
// per-number rate limiting and PIN verification.
package security

import (
	"context"
	"log/slog"
	"strings"

	"callbridge/internal/audit"
	"callbridge/internal/session"
)

type Reason string

const (
	ReasonUnauthorized Reason = "unauthorized"
	ReasonRateLimited  Reason = "rate_limited"
)

// Entry is one allowlisted caller.
type Entry struct {
	Number string
	PIN    string
	Name   string
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed    bool
	Reason     Reason
	CallerName string
	PIN        string
}

// PinResult is the outcome of VerifyPin.
type PinResult struct {
	OK                bool
	AttemptsRemaining int
	// Exhausted means the caller must be disconnected and the session destroyed.
	Exhausted bool
}

type Gate struct {
	entries     map[string]Entry
	limiter     Limiter
	maxAttempts int
	audit       *audit.Service
	log         *slog.Logger
}

// NewGate indexes entries by number; the first entry for a number wins.
// auditSvc may be nil.
func NewGate(entries []Entry, maxAttempts int, limiter Limiter, auditSvc *audit.Service, log *slog.Logger) *Gate {
	idx := make(map[string]Entry, len(entries))
	for _, e := range entries {
		n := normalizeNumber(e.Number)
		if _, dup := idx[n]; dup {
			continue
		}
		e.Number = n
		idx[n] = e
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gate{entries: idx, limiter: limiter, maxAttempts: maxAttempts, audit: auditSvc, log: log}
}

// MaxAttempts is the number of wrong PINs that ends a call.
func (g *Gate) MaxAttempts() int { return g.maxAttempts }

// Authorize checks the allowlist, then the rate limit. Only allowlisted callers
// consume rate-limit budget.
func (g *Gate) Authorize(ctx context.Context, callerNumber, callID string) Decision {
	number := normalizeNumber(callerNumber)
	entry, ok := g.entries[number]
	if !ok {
		g.record(ctx, audit.EventTypeUnauthorized, number, callID, "caller not in allowlist")
		return Decision{Reason: ReasonUnauthorized}
	}

	if g.limiter != nil {
		allowed, err := g.limiter.Allow(ctx, number)
		if err != nil {
			g.log.Warn("rate limit check failed, allowing call", "caller", number, "error", err)
			allowed = true
		}
		if !allowed {
			g.record(ctx, audit.EventTypeRateLimited, number, callID, "rate limit ceiling reached")
			return Decision{Reason: ReasonRateLimited, CallerName: entry.Name}
		}
	}

	g.record(ctx, audit.EventTypeAuthorized, number, callID, "")
	return Decision{Allowed: true, CallerName: entry.Name, PIN: entry.PIN}
}

// VerifyPin checks entered and records the outcome. Callers that share the
// session between requests should use CheckPin under the session lock and
// RecordPin after releasing it.
func (g *Gate) VerifyPin(ctx context.Context, cs *session.CallSession, entered string) PinResult {
	res := g.CheckPin(cs, entered)
	g.RecordPin(ctx, *cs, res)
	return res
}

// CheckPin compares entered against the caller's PIN and increments
// cs.PinAttempts on a mismatch. It does no I/O.
func (g *Gate) CheckPin(cs *session.CallSession, entered string) PinResult {
	entry, ok := g.entries[normalizeNumber(cs.CallerNumber)]
	if ok && entered == entry.PIN {
		return PinResult{OK: true, AttemptsRemaining: g.maxAttempts - cs.PinAttempts}
	}
	cs.PinAttempts++
	remaining := g.maxAttempts - cs.PinAttempts
	if remaining <= 0 {
		return PinResult{Exhausted: true}
	}
	return PinResult{AttemptsRemaining: remaining}
}

// RecordPin logs and audits a CheckPin outcome.
func (g *Gate) RecordPin(ctx context.Context, cs session.CallSession, res PinResult) {
	switch {
	case res.OK:
		g.record(ctx, audit.EventTypePinOK, cs.CallerNumber, cs.ID, "")
	case res.Exhausted:
		g.record(ctx, audit.EventTypeMaxAttempts, cs.CallerNumber, cs.ID, "pin attempts exhausted")
	default:
		g.record(ctx, audit.EventTypeWrongPin, cs.CallerNumber, cs.ID, "")
	}
}

func (g *Gate) record(ctx context.Context, typ audit.EventType, number, callID, msg string) {
	level := slog.LevelInfo
	if typ != audit.EventTypeAuthorized && typ != audit.EventTypePinOK {
		level = slog.LevelWarn
	}
	g.log.Log(ctx, level, "security gate", "outcome", string(typ), "caller", number, "call_sid", callID)

	if g.audit == nil {
		return
	}
	if err := g.audit.LogCaller(ctx, typ, number, callID, msg); err != nil {
		g.log.Error("audit append failed", "outcome", string(typ), "error", err)
	}
}

func normalizeNumber(n string) string {
	n = strings.TrimSpace(n)
	// Form decoding turns a leading '+' into a space when callers skip escaping.
	if n != "" && n[0] != '+' && strings.Trim(n, "0123456789") == "" && len(n) > 10 {
		return "+" + n
	}
	return n
}
