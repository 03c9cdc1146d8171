package session

import "time"

// State is a call's position in the call flow.
type State string

const (
	StateStart              State = "start"
	StatePinPending         State = "pin_pending"
	StateMenuPending        State = "menu_pending"
	StateConversation       State = "conversation"
	StateVoiceNoteRecording State = "voice_note_recording"
	StateTaskConfirm        State = "task_confirm"
	StateTerminated         State = "terminated"
)

// Mode is what the caller is currently doing once past the menu.
type Mode string

const (
	ModeConversation Mode = "conversation"
	ModeVoiceNote    Mode = "voice-note"
	ModeTaskPending  Mode = "task-pending"
)

// CallSession is the in-memory state of one active call.
//
// Invariants:
// - ID and CallerNumber never change after creation.
// - PinAttempts is only incremented by PIN verification.
// - Language is set once at menu selection.
type CallSession struct {
	ID           string    `json:"id"`
	CallerNumber string    `json:"caller_number"`
	CallerName   string    `json:"caller_name"`
	PinAttempts  int       `json:"pin_attempts"`
	Language     string    `json:"language,omitempty"`
	Mode         Mode      `json:"mode,omitempty"`
	State        State     `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	// Transcript holds final live-transcription segments in arrival order.
	Transcript []string `json:"transcript,omitempty"`
}

func (s CallSession) clone() CallSession {
	if s.Transcript != nil {
		s.Transcript = append([]string(nil), s.Transcript...)
	}
	return s
}
