package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callbridge/internal/audit"
	"callbridge/internal/auth"
	"callbridge/internal/config"
	"callbridge/internal/escalation"
	"callbridge/internal/voicenote"

	"github.com/gin-gonic/gin"
)

type stubQueue struct {
	entries []escalation.Entry
	err     error
}

func (s stubQueue) Pending() ([]escalation.Entry, error) { return s.entries, s.err }

type stubNotes struct {
	notes []voicenote.Note
}

func (s stubNotes) List(context.Context) ([]voicenote.Note, error) { return s.notes, nil }

type listBody struct {
	Items []json.RawMessage `json:"items"`
	Total int               `json:"total"`
}

func newRouter(t *testing.T, h Handlers) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	r := gin.New()
	v1 := r.Group("/v1", RequireOperator(m)...)
	v1.GET("/escalations/pending", h.ListPendingEscalations)
	v1.GET("/voice-notes", h.ListVoiceNotes)
	return r, m
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListPendingEscalationsAudited(t *testing.T) {
	repo := audit.NewMemoryRepo()
	h := Handlers{
		Escalations: stubQueue{entries: []escalation.Entry{{ID: "a", Message: "one"}, {ID: "b", Message: "two"}, {ID: "c"}}},
		Audit:       audit.NewService(repo),
	}
	r, m := newRouter(t, h)
	tok, _ := m.IssueOperator(time.Now(), "ops@example.com")

	w := get(r, "/v1/escalations/pending?limit=2", tok)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body listBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 2 || body.Total != 3 {
		t.Fatalf("unexpected body %+v", body)
	}

	events := repo.ByType(audit.EventTypeAdminRead)
	if len(events) != 1 || len(repo.Events()) != 1 || events[0].Actor != "ops@example.com" {
		t.Fatalf("expected one admin read event, got %+v", events)
	}
}

func TestListVoiceNotesEmptyIsArray(t *testing.T) {
	r, m := newRouter(t, Handlers{VoiceNotes: stubNotes{}})
	tok, _ := m.IssueOperator(time.Now(), "ops")

	w := get(r, "/v1/voice-notes", tok)
	if w.Code != http.StatusOK || w.Body.String() != `{"items":[],"total":0}` {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestAdminAPIRequiresOperatorToken(t *testing.T) {
	r, m := newRouter(t, Handlers{VoiceNotes: stubNotes{}})

	if w := get(r, "/v1/voice-notes", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	svc, _ := m.ServiceToken(time.Now())
	if w := get(r, "/v1/voice-notes", svc); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected service token rejected, got %d", w.Code)
	}
}

func TestListErrors(t *testing.T) {
	r, m := newRouter(t, Handlers{Escalations: stubQueue{err: errors.New("disk")}})
	tok, _ := m.IssueOperator(time.Now(), "ops")

	if w := get(r, "/v1/escalations/pending", tok); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if w := get(r, "/v1/escalations/pending?limit=x", tok); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := get(r, "/v1/voice-notes", tok); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
