package main

import (
	"net/http"
	"time"

	"callbridge/internal/audit"
	"callbridge/internal/auth"
	"callbridge/internal/callflow"
	"callbridge/internal/config"
	"callbridge/internal/escalation"
	"callbridge/internal/httpapi"
	"callbridge/internal/mediastream"
	"callbridge/internal/telephony"
	"callbridge/internal/voicenote"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	cfg     config.Config
	voice   telephony.VoiceHandlers
	streams *mediastream.Handler
	auth    *auth.Manager
	audit   *audit.Service
	queue   *escalation.Queue
	notes   *voicenote.FileStore
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	// Carrier webhooks.
	voice := r.Group("/")
	if d.cfg.Twilio.ValidateSignatures {
		voice.Use(telephony.RequireTwilioSignature(d.cfg.Twilio.AuthToken, d.cfg.App.PublicURL))
	}
	{
		voice.POST(callflow.PathIncoming, d.voice.HandleIncoming)
		voice.POST(callflow.PathPin, d.voice.HandlePin)
		voice.POST(callflow.PathMenu, d.voice.HandleMenu)
		voice.POST(callflow.PathSpeech, d.voice.HandleSpeech)
		voice.POST(callflow.PathRecording, d.voice.HandleRecording)
	}
	// The carrier signs the media socket handshake over the wss URL.
	stream := []gin.HandlerFunc{d.streams.Handle}
	if d.cfg.Twilio.ValidateSignatures {
		stream = append([]gin.HandlerFunc{
			telephony.RequireTwilioSignature(d.cfg.Twilio.AuthToken, telephony.WebsocketURL(d.cfg.App.PublicURL)),
		}, stream...)
	}
	r.GET(callflow.PathStream, stream...)

	// Operator API. Without a signing secret there is no way to authenticate,
	// so the group is not mounted.
	if d.auth == nil {
		return
	}
	h := httpapi.Handlers{
		Escalations: d.queue,
		VoiceNotes:  d.notes,
		Audit:       d.audit,
	}
	v1 := r.Group("/v1", httpapi.RequireOperator(d.auth)...)
	{
		v1.GET("/escalations/pending", h.ListPendingEscalations)
		v1.GET("/voice-notes", h.ListVoiceNotes)
	}
}
