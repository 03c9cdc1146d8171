package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/config"
	"callbridge/internal/escalation"
	"callbridge/internal/mediastream"
	"callbridge/internal/telephony"
	"callbridge/internal/voicenote"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, withAuth bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	d := routeDeps{
		voice:   telephony.VoiceHandlers{},
		streams: mediastream.NewHandler(mediastream.Config{}, nil, nil),
		queue:   escalation.NewQueue(dir),
		notes:   voicenote.NewFileStore(dir),
	}
	if withAuth {
		m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret"})
		if err != nil {
			t.Fatalf("manager: %v", err)
		}
		d.auth = m
	}
	r := gin.New()
	registerRoutes(r, d)
	return r
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, false)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body struct {
		Status string `json:"status"`
		Time   string `json:"time"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("unexpected health %d %+v", w.Code, body)
	}
	if _, err := time.Parse(time.RFC3339, body.Time); err != nil {
		t.Fatalf("expected RFC3339 time, got %q", body.Time)
	}
}

func TestVoiceWebhooksAlwaysAnswerTwiML(t *testing.T) {
	r := newTestRouter(t, false)
	for _, path := range []string{"/voice/incoming", "/voice/pin", "/voice/menu", "/voice/speech", "/voice/recording"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("CallSid=CA1&From=%2B15550001111"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<Response>") {
			t.Fatalf("%s: unexpected response %d %s", path, w.Code, w.Body.String())
		}
	}
}

func TestOperatorAPIMountedOnlyWithSecret(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t, false).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/voice-notes", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without auth, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	newTestRouter(t, true).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/voice-notes", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestStreamHandshakeRequiresSignatureWhenEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{}
	cfg.App.PublicURL = "https://calls.example.com"
	cfg.Twilio.AuthToken = "secret"
	cfg.Twilio.ValidateSignatures = true

	r := gin.New()
	registerRoutes(r, routeDeps{
		cfg:     cfg,
		voice:   telephony.VoiceHandlers{},
		streams: mediastream.NewHandler(mediastream.Config{}, nil, nil),
	})

	req := httptest.NewRequest(http.MethodGet, "/voice/stream", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected unsigned handshake rejected, got %d", w.Code)
	}
}
