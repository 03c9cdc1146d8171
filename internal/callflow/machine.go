package callflow

import (
	"context"
	"errors"
	"log/slog"

	"callbridge/internal/escalation"
	"callbridge/internal/messages"
	"callbridge/internal/respond"
	"callbridge/internal/security"
	"callbridge/internal/session"
	"callbridge/internal/telephony"
	"callbridge/internal/voicenote"
	"callbridge/pkg/logger"
)

// Gatekeeper is the security gate as seen by the call flow.
type Gatekeeper interface {
	Authorize(ctx context.Context, callerNumber, callID string) security.Decision
	CheckPin(cs *session.CallSession, entered string) security.PinResult
	RecordPin(ctx context.Context, cs session.CallSession, res security.PinResult)
}

type Responder interface {
	Respond(ctx context.Context, utterance string, cs session.CallSession) respond.Reply
}

type NoteProcessor interface {
	Process(ctx context.Context, rec voicenote.Recording, cs session.CallSession) voicenote.Result
}

// Deps are the collaborators Machine runs effects against. Responder, Tasks
// and Notes may be nil; the matching turns then apologise.
type Deps struct {
	Gate      Gatekeeper
	Store     *session.Store
	Responder Responder
	Tasks     respond.Enqueuer
	Notes     NoteProcessor
}

// Machine implements telephony.CallFlow.
type Machine struct {
	opts Options
	deps Deps
	log  *slog.Logger
}

var _ telephony.CallFlow = (*Machine)(nil)

func NewMachine(opts Options, deps Deps, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{opts: opts.withDefaults(), deps: deps, log: log}
}

func (m *Machine) logger(ctx context.Context, callID string) *slog.Logger {
	return logger.FromOr(ctx, m.log).With("call_sid", callID)
}

// Inbound handles a new call.
func (m *Machine) Inbound(ctx context.Context, ev telephony.CallEvent) telephony.Response {
	log := m.logger(ctx, ev.CallID)
	lang := m.opts.DefaultLanguage

	state, eff := Transition(session.StateStart, EvCall)
	if eff.Action != ActAuthorize {
		return m.endCall(ctx, ev.CallID, lang, messages.GenericError)
	}
	d := m.deps.Gate.Authorize(ctx, ev.From, ev.CallID)
	if !d.Allowed {
		_, eff = Transition(state, EvRejected)
		log.Info("call rejected", "reason", d.Reason, "action", eff.Action)
		key := messages.NotAuthorized
		if d.Reason == security.ReasonRateLimited {
			key = messages.RateLimited
		}
		return m.hangup(lang, key)
	}

	state, eff = Transition(state, EvAuthorized)
	_, err := m.deps.Store.Create(session.CallSession{
		ID:           ev.CallID,
		CallerNumber: ev.From,
		CallerName:   d.CallerName,
		State:        state,
		StartedAt:    ev.OccurredAt,
	})
	if err != nil {
		log.Error("session create failed", "error", err)
		return m.hangup(lang, messages.GenericError)
	}
	log.Info("call accepted", "state", state)
	return m.pinGather(lang, messages.Text(lang, eff.Message, m.opts.PinLength))
}

// Pin handles PIN digits.
func (m *Machine) Pin(ctx context.Context, ev telephony.DigitsEvent) telephony.Response {
	cs, ok, resp := m.load(ctx, ev.CallID)
	if !ok {
		return resp
	}
	lang := m.lang(cs)

	// The compare and the attempt increment happen under the session lock so
	// concurrent digit callbacks cannot lose an attempt.
	var (
		res   security.PinResult
		next  Event
		state session.State
		eff   Effect
	)
	updated, err := m.deps.Store.Update(cs.ID, func(s *session.CallSession) error {
		if _, e := Transition(s.State, EvPinDigits); e.Action != ActVerifyPin {
			return errNotAwaitingPin
		}
		res = m.deps.Gate.CheckPin(s, ev.Digits)
		next = pinEvent(res)
		state, eff = Transition(s.State, next)
		s.State = state
		return nil
	})
	if errors.Is(err, errNotAwaitingPin) {
		return m.unexpected(ctx, updated, EvPinDigits)
	}
	if err != nil {
		return m.storeFailed(ctx, cs, err)
	}
	m.deps.Gate.RecordPin(ctx, updated, res)

	if eff.Action == ActEndCall {
		return m.endCall(ctx, cs.ID, lang, eff.Message)
	}
	switch eff.Action {
	case ActPromptMenu:
		return m.menu(updated)
	case ActRepromptPin:
		return m.pinGather(lang, messages.Text(lang, eff.Message, res.AttemptsRemaining, m.opts.PinLength))
	}
	return m.unexpected(ctx, updated, next)
}

var errNotAwaitingPin = errors.New("callflow: session is not awaiting a pin")

func pinEvent(res security.PinResult) Event {
	switch {
	case res.OK:
		return EvPinOK
	case res.Exhausted:
		return EvPinExhausted
	}
	return EvPinWrong
}

// Menu handles the language or voice-note selection.
func (m *Machine) Menu(ctx context.Context, ev telephony.DigitsEvent) telephony.Response {
	cs, ok, resp := m.load(ctx, ev.CallID)
	if !ok {
		return resp
	}

	lang := m.opts.DefaultLanguage
	event := EvMenuNone
	if ev.Digits != "" && ev.Digits == m.opts.VoiceNote.Key {
		event = EvMenuVoiceNote
	} else if opt, found := m.opts.languageByKey(ev.Digits); found {
		event = EvMenuLanguage
		lang = opt.Code
	}

	state, eff := Transition(cs.State, event)
	switch eff.Action {
	case ActSelectLanguage:
		mode := session.ModeConversation
		if err := m.commit(cs.ID, state, mode, lang); err != nil {
			return m.storeFailed(ctx, cs, err)
		}
		m.logger(ctx, cs.ID).Info("language selected", "language", lang, "digits", ev.Digits)
		return m.welcome(cs.ID, lang)
	case ActStartRecording:
		if err := m.commit(cs.ID, state, session.ModeVoiceNote, lang); err != nil {
			return m.storeFailed(ctx, cs, err)
		}
		return m.record(lang)
	}
	return m.unexpected(ctx, cs, event)
}

// Speech handles one conversation turn.
func (m *Machine) Speech(ctx context.Context, ev telephony.SpeechEvent) telephony.Response {
	cs, ok, resp := m.load(ctx, ev.CallID)
	if !ok {
		return resp
	}
	lang := m.lang(cs)
	log := m.logger(ctx, cs.ID)

	event := EvNoSpeech
	if ev.Text != "" {
		switch Classify(lang, ev.Text) {
		case IntentTask:
			event = EvTask
		case IntentVoiceNote:
			event = EvVoiceNote
		case IntentGoodbye:
			event = EvGoodbye
		default:
			event = EvChat
		}
	}
	log.Info("speech turn", "intent", string(event), "confidence", ev.Confidence, "text", logger.Truncate(ev.Text, 80))

	state, eff := Transition(cs.State, event)
	switch eff.Action {
	case ActRespond:
		if m.deps.Responder == nil {
			return m.listen(lang, messages.Text(lang, messages.ReplyFailed))
		}
		reply := m.deps.Responder.Respond(ctx, ev.Text, cs)
		if _, err := m.deps.Store.Update(cs.ID, func(s *session.CallSession) error {
			s.State = state
			return nil
		}); err != nil {
			// The caller hung up while the model was answering.
			if errors.Is(err, session.ErrNotFound) {
				return m.sessionError(ctx, cs.ID)
			}
			return m.storeFailed(ctx, cs, err)
		}
		return m.listen(lang, reply.Text)

	case ActQueueTask:
		return m.queueTask(ctx, cs, state, ev.Text)

	case ActStartRecording:
		if err := m.commit(cs.ID, state, session.ModeVoiceNote, lang); err != nil {
			return m.storeFailed(ctx, cs, err)
		}
		return m.record(lang)

	case ActEndCall:
		return m.endCall(ctx, cs.ID, lang, eff.Message)

	case ActSpeakAndListen:
		return m.listen(lang, messages.Text(lang, eff.Message))
	}
	return m.unexpected(ctx, cs, event)
}

func (m *Machine) queueTask(ctx context.Context, cs session.CallSession, state session.State, text string) telephony.Response {
	lang := m.lang(cs)
	if err := m.commit(cs.ID, state, session.ModeTaskPending, lang); err != nil {
		return m.storeFailed(ctx, cs, err)
	}

	outcome := EvTaskFailed
	if m.deps.Tasks != nil {
		e, err := m.deps.Tasks.Enqueue(ctx, escalation.Entry{
			Message:         text,
			Language:        lang,
			CallerNumber:    cs.CallerNumber,
			CallerName:      cs.CallerName,
			DestinationHint: m.opts.TaskDestinationHint,
			Kind:            escalation.KindTask,
		})
		if err != nil {
			m.logger(ctx, cs.ID).Error("task enqueue failed", "error", err)
		} else {
			m.logger(ctx, cs.ID).Info("task queued", "entry_id", e.ID)
			outcome = EvTaskQueued
		}
	}

	next, eff := Transition(state, outcome)
	if err := m.commit(cs.ID, next, session.ModeConversation, lang); err != nil {
		return m.storeFailed(ctx, cs, err)
	}
	return m.listen(lang, messages.Text(lang, eff.Message))
}

// Recording handles the end of a voice-note recording.
func (m *Machine) Recording(ctx context.Context, ev telephony.RecordingEvent) telephony.Response {
	cs, ok, resp := m.load(ctx, ev.CallID)
	if !ok {
		return resp
	}
	lang := m.lang(cs)
	_, eff := Transition(cs.State, EvRecordingDone)
	if eff.Action != ActProcessRecording {
		return m.unexpected(ctx, cs, EvRecordingDone)
	}
	defer m.deps.Store.Delete(cs.ID)

	if m.deps.Notes == nil {
		return m.hangup(lang, messages.VoiceNoteFailed)
	}
	res := m.deps.Notes.Process(ctx, voicenote.Recording{
		URL:             ev.URL,
		ID:              ev.RecordingID,
		DurationSeconds: ev.DurationSeconds,
	}, cs)
	var r telephony.Response
	return *r.Add(m.say(lang, res.Message), telephony.Hangup{})
}

// load fetches the session or builds the session-error response.
func (m *Machine) load(ctx context.Context, callID string) (session.CallSession, bool, telephony.Response) {
	cs, err := m.deps.Store.Get(callID)
	if err != nil {
		return session.CallSession{}, false, m.sessionError(ctx, callID)
	}
	return cs, true, telephony.Response{}
}

func (m *Machine) sessionError(ctx context.Context, callID string) telephony.Response {
	_, eff := Transition(session.StateStart, EvSessionMissing)
	m.logger(ctx, callID).Warn("callback for unknown session")
	return m.hangup(m.opts.DefaultLanguage, eff.Message)
}

func (m *Machine) unexpected(ctx context.Context, cs session.CallSession, ev Event) telephony.Response {
	m.logger(ctx, cs.ID).Warn("unexpected event for state", "state", cs.State, "event", string(ev))
	return m.endCall(ctx, cs.ID, m.lang(cs), messages.GenericError)
}

func (m *Machine) storeFailed(ctx context.Context, cs session.CallSession, err error) telephony.Response {
	m.logger(ctx, cs.ID).Error("session update failed", "error", err)
	if errors.Is(err, session.ErrNotFound) {
		return m.sessionError(ctx, cs.ID)
	}
	return m.endCall(ctx, cs.ID, m.lang(cs), messages.GenericError)
}

func (m *Machine) endCall(ctx context.Context, callID, lang string, key messages.Key) telephony.Response {
	if m.deps.Store.Delete(callID) {
		m.logger(ctx, callID).Info("call ended", "message", string(key))
	}
	return m.hangup(lang, key)
}

func (m *Machine) commit(callID string, state session.State, mode session.Mode, lang string) error {
	_, err := m.deps.Store.Update(callID, func(s *session.CallSession) error {
		s.State = state
		s.Mode = mode
		if s.Language == "" {
			s.Language = lang
		}
		return nil
	})
	return err
}

func (m *Machine) lang(cs session.CallSession) string {
	if cs.Language != "" {
		return cs.Language
	}
	return m.opts.DefaultLanguage
}

// --- response builders ---

func (m *Machine) say(lang, text string) telephony.Say {
	s := telephony.Say{Text: text, Language: lang}
	if opt, ok := m.opts.language(lang); ok {
		s.Voice = opt.Voice
		if opt.SpeechLocale != "" {
			s.Language = opt.SpeechLocale
		}
	}
	return s
}

func (m *Machine) hangup(lang string, key messages.Key) telephony.Response {
	var r telephony.Response
	return *r.Add(m.say(lang, messages.Text(lang, key)), telephony.Hangup{})
}

// noInput follows every gather: a gather that times out falls through to the
// next verb, which ends the call.
func (m *Machine) noInput(r *telephony.Response, lang string) telephony.Response {
	return *r.Add(m.say(lang, messages.Text(lang, messages.NoInput)), telephony.Hangup{})
}

func (m *Machine) pinGather(lang, prompt string) telephony.Response {
	var r telephony.Response
	r.Add(telephony.Gather{
		Input:     "dtmf",
		NumDigits: m.opts.PinLength,
		Action:    PathPin,
		Method:    "POST",
		Timeout:   m.opts.MenuTimeout,
		Prompts:   []telephony.Say{m.say(lang, prompt)},
	})
	return m.noInput(&r, lang)
}

func (m *Machine) menu(cs session.CallSession) telephony.Response {
	lang := m.opts.DefaultLanguage
	prompts := make([]telephony.Say, 0, len(m.opts.Languages)+2)
	if cs.CallerName != "" {
		prompts = append(prompts, m.say(lang, messages.Text(lang, messages.MenuIntro, cs.CallerName)))
	}
	for _, l := range m.opts.Languages {
		prompts = append(prompts, m.say(l.Code, l.Prompt))
	}
	if m.opts.VoiceNote.Key != "" && m.opts.VoiceNote.Prompt != "" {
		s := m.say(lang, m.opts.VoiceNote.Prompt)
		if m.opts.VoiceNote.Voice != "" {
			s.Voice = m.opts.VoiceNote.Voice
		}
		prompts = append(prompts, s)
	}

	var r telephony.Response
	return *r.Add(telephony.Gather{
		Input:               "dtmf",
		NumDigits:           1,
		Action:              PathMenu,
		Method:              "POST",
		Timeout:             m.opts.MenuTimeout,
		ActionOnEmptyResult: "true",
		Prompts:             prompts,
	})
}

func (m *Machine) welcome(callID, lang string) telephony.Response {
	var r telephony.Response
	if m.opts.StreamURL != "" {
		r.Add(telephony.Start{Stream: telephony.Stream{
			URL:   m.opts.StreamURL,
			Track: "inbound_track",
			Parameters: []telephony.Parameter{
				{Name: "call_sid", Value: callID},
				{Name: "language", Value: lang},
			},
		}})
	}
	r.Add(m.speechGather(lang, messages.Text(lang, messages.Welcome)))
	return m.noInput(&r, lang)
}

func (m *Machine) listen(lang, text string) telephony.Response {
	var r telephony.Response
	r.Add(m.speechGather(lang, text))
	return m.noInput(&r, lang)
}

func (m *Machine) speechGather(lang, prompt string) telephony.Gather {
	locale := lang
	if opt, ok := m.opts.language(lang); ok && opt.SpeechLocale != "" {
		locale = opt.SpeechLocale
	}
	return telephony.Gather{
		Input:         "speech",
		Action:        PathSpeech,
		Method:        "POST",
		Timeout:       m.opts.SpeechTimeout,
		SpeechTimeout: "auto",
		Language:      locale,
		Prompts:       []telephony.Say{m.say(lang, prompt)},
	}
}

func (m *Machine) record(lang string) telephony.Response {
	var r telephony.Response
	r.Add(
		m.say(lang, messages.Text(lang, messages.VoiceNotePrompt)),
		telephony.Record{
			Action:      PathRecording,
			Method:      "POST",
			MaxLength:   m.opts.MaxRecordSeconds,
			Timeout:     5,
			PlayBeep:    "true",
			FinishOnKey: "#",
		},
	)
	return m.noInput(&r, lang)
}
