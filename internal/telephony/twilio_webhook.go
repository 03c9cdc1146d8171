package telephony

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TwilioVoiceForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type TwilioVoiceForm struct {
	CallSid           string
	AccountSid        string
	From              string
	To                string
	CallStatus        string
	Digits            string
	SpeechResult      string
	Confidence        float64
	RecordingURL      string
	RecordingSid      string
	RecordingDuration int
}

func ParseTwilioVoiceForm(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	f := TwilioVoiceForm{
		CallSid:      strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         normalizePhone(r.PostFormValue("From")),
		To:           normalizePhone(r.PostFormValue("To")),
		CallStatus:   r.PostFormValue("CallStatus"),
		Digits:       strings.TrimSpace(r.PostFormValue("Digits")),
		SpeechResult: strings.TrimSpace(r.PostFormValue("SpeechResult")),
		RecordingURL: strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		RecordingSid: r.PostFormValue("RecordingSid"),
	}
	// Malformed numeric fields are treated as absent.
	if v, err := strconv.ParseFloat(r.PostFormValue("Confidence"), 64); err == nil {
		f.Confidence = v
	}
	if v, err := strconv.Atoi(r.PostFormValue("RecordingDuration")); err == nil {
		f.RecordingDuration = v
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Form decoding turns an unescaped "+" into a space.
	if s != "" && s[0] >= '0' && s[0] <= '9' && len(s) > 10 {
		return "+" + s
	}
	return s
}

func (f TwilioVoiceForm) CallEvent(occurredAt time.Time) CallEvent {
	return CallEvent{CallID: f.CallSid, From: f.From, To: f.To, OccurredAt: occurredAt}
}

func (f TwilioVoiceForm) DigitsEvent(occurredAt time.Time) DigitsEvent {
	return DigitsEvent{CallEvent: f.CallEvent(occurredAt), Digits: f.Digits}
}

func (f TwilioVoiceForm) SpeechEvent(occurredAt time.Time) SpeechEvent {
	return SpeechEvent{CallEvent: f.CallEvent(occurredAt), Text: f.SpeechResult, Confidence: f.Confidence}
}

func (f TwilioVoiceForm) RecordingEvent(occurredAt time.Time) RecordingEvent {
	return RecordingEvent{
		CallEvent:       f.CallEvent(occurredAt),
		URL:             f.RecordingURL,
		RecordingID:     f.RecordingSid,
		DurationSeconds: f.RecordingDuration,
	}
}
