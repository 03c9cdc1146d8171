package telephony

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callbridge/pkg/logger"
)

// VoiceHandlers converts Twilio voice webhooks to call-flow events and writes
// TwiML. No business logic here.
//
// Every handler answers 200 with a playable document; the carrier would
// otherwise read its own generic error to the caller.
type VoiceHandlers struct {
	Flow CallFlow
	Now  func() time.Time
}

func (h VoiceHandlers) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h VoiceHandlers) HandleIncoming(c *gin.Context) {
	h.handle(c, func(f TwilioVoiceForm) Response {
		return h.Flow.Inbound(c.Request.Context(), f.CallEvent(h.now()))
	})
}

func (h VoiceHandlers) HandlePin(c *gin.Context) {
	h.handle(c, func(f TwilioVoiceForm) Response {
		return h.Flow.Pin(c.Request.Context(), f.DigitsEvent(h.now()))
	})
}

func (h VoiceHandlers) HandleMenu(c *gin.Context) {
	h.handle(c, func(f TwilioVoiceForm) Response {
		return h.Flow.Menu(c.Request.Context(), f.DigitsEvent(h.now()))
	})
}

func (h VoiceHandlers) HandleSpeech(c *gin.Context) {
	h.handle(c, func(f TwilioVoiceForm) Response {
		return h.Flow.Speech(c.Request.Context(), f.SpeechEvent(h.now()))
	})
}

func (h VoiceHandlers) HandleRecording(c *gin.Context) {
	h.handle(c, func(f TwilioVoiceForm) Response {
		return h.Flow.Recording(c.Request.Context(), f.RecordingEvent(h.now()))
	})
}

func (h VoiceHandlers) handle(c *gin.Context, fn func(TwilioVoiceForm) Response) {
	log := logger.FromGin(c)

	if h.Flow == nil {
		log.Error("voice webhook: call flow not configured")
		writeTwiML(c, Fallback)
		return
	}

	form, err := ParseTwilioVoiceForm(c.Request)
	if err != nil || form.CallSid == "" {
		log.Warn("voice webhook: invalid form", "err", err)
		writeTwiML(c, Fallback)
		return
	}

	twiml, err := RenderTwiML(fn(form))
	if err != nil {
		log.Error("voice webhook: twiml render failed", "err", err)
		twiml = Fallback
	}
	writeTwiML(c, twiml)
}

func writeTwiML(c *gin.Context, doc string) {
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, doc)
}
