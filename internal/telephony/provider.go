package telephony

import (
	"context"
	"time"
)

// CallFlow decides what happens on each carrier callback.
//
// Rules:
// - No carrier SDK types cross this boundary.
// - Implementations never fail: every call returns a Response the carrier can
//   play, including apologetic terminal responses.
type CallFlow interface {
	Inbound(ctx context.Context, ev CallEvent) Response
	Pin(ctx context.Context, ev DigitsEvent) Response
	Menu(ctx context.Context, ev DigitsEvent) Response
	Speech(ctx context.Context, ev SpeechEvent) Response
	Recording(ctx context.Context, ev RecordingEvent) Response
}

// CallEvent identifies the call a callback belongs to.
type CallEvent struct {
	// CallID is the carrier's unique identifier for this call.
	CallID string `json:"call_id"`

	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	OccurredAt time.Time `json:"occurred_at"`
}

type DigitsEvent struct {
	CallEvent
	Digits string `json:"digits"`
}

type SpeechEvent struct {
	CallEvent
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type RecordingEvent struct {
	CallEvent
	URL             string `json:"url"`
	RecordingID     string `json:"recording_id"`
	DurationSeconds int    `json:"duration_seconds"`
}
