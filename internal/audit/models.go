package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - caller_number is required; PINs and utterances never appear here.
// - audit writes are best-effort; do not block call handling on audit failures.
type Event struct {
	ID string `json:"id"`

	// Type indicates the security or operator category of the record.
	Type EventType `json:"type"`

	CallerNumber string `json:"caller_number"`
	CallID       string `json:"call_id,omitempty"`

	// Actor is the operator subject for admin events.
	Actor string `json:"actor,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeAuthorized   EventType = "authorized"
	EventTypeUnauthorized EventType = "unauthorized"
	EventTypeRateLimited  EventType = "rate_limited"
	EventTypePinOK        EventType = "pin_ok"
	EventTypeWrongPin     EventType = "wrong_pin"
	EventTypeMaxAttempts  EventType = "max_attempts"
	EventTypeAdminRead    EventType = "admin_read"
)
