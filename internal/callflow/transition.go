// Package callflow drives one call from the inbound webhook to hangup.
//
// Transition is pure: it maps the current state and an event to the next state
// and the effect to run. Machine runs effects (gate checks, model calls, queue
// and note writes) and feeds their outcomes back as events.
package callflow

import (
	"callbridge/internal/messages"
	"callbridge/internal/session"
)

// Event is something that happened to a call: a carrier callback, or the
// outcome of an effect.
type Event string

const (
	EvCall       Event = "call"
	EvAuthorized Event = "authorized"
	EvRejected   Event = "rejected"

	EvPinDigits    Event = "pin_digits"
	EvPinOK        Event = "pin_ok"
	EvPinWrong     Event = "pin_wrong"
	EvPinExhausted Event = "pin_exhausted"

	EvMenuLanguage  Event = "menu_language"
	EvMenuVoiceNote Event = "menu_voice_note"
	EvMenuNone      Event = "menu_none"

	EvChat          Event = "chat"
	EvTask          Event = "task"
	EvVoiceNote     Event = "voice_note"
	EvGoodbye       Event = "goodbye"
	EvNoSpeech      Event = "no_speech"
	EvTaskQueued    Event = "task_queued"
	EvTaskFailed    Event = "task_failed"
	EvRecordingDone Event = "recording_done"

	EvSessionMissing Event = "session_missing"
)

// Action is what Machine must do next.
type Action string

const (
	ActAuthorize        Action = "authorize"
	ActReject           Action = "reject"
	ActStartSession     Action = "start_session"
	ActVerifyPin        Action = "verify_pin"
	ActPromptMenu       Action = "prompt_menu"
	ActRepromptPin      Action = "reprompt_pin"
	ActSelectLanguage   Action = "select_language"
	ActStartRecording   Action = "start_recording"
	ActRespond          Action = "respond"
	ActQueueTask        Action = "queue_task"
	ActSpeakAndListen   Action = "speak_and_listen"
	ActProcessRecording Action = "process_recording"
	ActEndCall          Action = "end_call"
	ActSessionError     Action = "session_error"
)

// Effect is the output of Transition. Message is set for actions that speak a
// fixed prompt.
type Effect struct {
	Action  Action
	Message messages.Key
}

// Transition returns the next state and effect. Unknown combinations end the
// call with a generic apology.
func Transition(s session.State, ev Event) (session.State, Effect) {
	if ev == EvSessionMissing {
		return session.StateTerminated, Effect{Action: ActSessionError, Message: messages.SessionError}
	}

	switch s {
	case session.StateStart:
		switch ev {
		case EvCall:
			return session.StateStart, Effect{Action: ActAuthorize}
		case EvAuthorized:
			return session.StatePinPending, Effect{Action: ActStartSession, Message: messages.PinPrompt}
		case EvRejected:
			return session.StateTerminated, Effect{Action: ActReject}
		}

	case session.StatePinPending:
		switch ev {
		case EvPinDigits:
			return session.StatePinPending, Effect{Action: ActVerifyPin}
		case EvPinOK:
			return session.StateMenuPending, Effect{Action: ActPromptMenu}
		case EvPinWrong:
			return session.StatePinPending, Effect{Action: ActRepromptPin, Message: messages.PinIncorrect}
		case EvPinExhausted:
			return session.StateTerminated, Effect{Action: ActEndCall, Message: messages.PinExhausted}
		}

	case session.StateMenuPending:
		switch ev {
		case EvMenuLanguage, EvMenuNone:
			return session.StateConversation, Effect{Action: ActSelectLanguage, Message: messages.Welcome}
		case EvMenuVoiceNote:
			return session.StateVoiceNoteRecording, Effect{Action: ActStartRecording, Message: messages.VoiceNotePrompt}
		}

	case session.StateConversation:
		switch ev {
		case EvChat:
			return session.StateConversation, Effect{Action: ActRespond}
		case EvTask:
			return session.StateTaskConfirm, Effect{Action: ActQueueTask}
		case EvVoiceNote:
			return session.StateVoiceNoteRecording, Effect{Action: ActStartRecording, Message: messages.VoiceNotePrompt}
		case EvGoodbye:
			return session.StateTerminated, Effect{Action: ActEndCall, Message: messages.Farewell}
		case EvNoSpeech:
			return session.StateConversation, Effect{Action: ActSpeakAndListen, Message: messages.DidNotHear}
		}

	case session.StateTaskConfirm:
		switch ev {
		case EvTaskQueued:
			return session.StateConversation, Effect{Action: ActSpeakAndListen, Message: messages.TaskQueued}
		case EvTaskFailed:
			return session.StateConversation, Effect{Action: ActSpeakAndListen, Message: messages.TaskFailed}
		}

	case session.StateVoiceNoteRecording:
		if ev == EvRecordingDone {
			return session.StateTerminated, Effect{Action: ActProcessRecording}
		}
	}

	return session.StateTerminated, Effect{Action: ActEndCall, Message: messages.GenericError}
}
