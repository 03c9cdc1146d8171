package escalation

import "time"

// Entry is one caller request deferred to asynchronous delivery.
type Entry struct {
	ID              string    `json:"id"`
	Message         string    `json:"message"`
	Language        string    `json:"language"`
	CallerNumber    string    `json:"caller_number"`
	CallerName      string    `json:"caller_name"`
	DestinationHint string    `json:"destination_hint,omitempty"`
	Kind            Kind      `json:"kind,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Kind separates slow questions from explicitly requested tasks.
type Kind string

const (
	KindTimeout Kind = "timeout"
	KindTask    Kind = "task"
)

// Processed is an Entry as written to the processed log.
type Processed struct {
	Entry
	ProcessedAt time.Time `json:"processed_at"`
	Delivered   bool      `json:"delivered"`
	Channel     string    `json:"channel,omitempty"`
	Error       string    `json:"error,omitempty"`
}
