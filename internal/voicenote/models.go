// Package voicenote persists caller voice notes and their transcripts.
package voicenote

import "time"

type Status string

const (
	StatusTranscribed Status = "transcribed"
	StatusPending     Status = "pending"
)

// Note is one recorded voice note. AudioFile is relative to the store dir.
type Note struct {
	ID              string    `json:"id"`
	CallID          string    `json:"call_id"`
	CallerNumber    string    `json:"caller_number"`
	CallerName      string    `json:"caller_name,omitempty"`
	Language        string    `json:"language"`
	RecordingID     string    `json:"recording_id,omitempty"`
	AudioFile       string    `json:"audio_file"`
	DurationSeconds int       `json:"duration_seconds"`
	Transcript      string    `json:"transcript,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
