package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records security outcomes and operator reads.
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.CallerNumber == "" && e.Actor == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCaller records a security gate outcome for a caller.
func (s *Service) LogCaller(ctx context.Context, typ EventType, callerNumber, callID, message string) error {
	return s.Append(ctx, Event{
		Type:         typ,
		CallerNumber: callerNumber,
		CallID:       callID,
		Message:      message,
	})
}

// LogAdminRead records an operator reading queued or stored caller data.
func (s *Service) LogAdminRead(ctx context.Context, actor, message string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeAdminRead,
		Actor:   actor,
		Message: message,
	})
}
