package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callbridge/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Mañana lloverá."}}]
}`

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		sys := msgs[0].(map[string]any)
		assert.Contains(t, sys["content"], "Spanish")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatCompletion)
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	reply, err := c.Complete(context.Background(), Request{Utterance: "¿Va a llover?", Language: "es", Spoken: true})
	require.NoError(t, err)
	assert.Equal(t, "Mañana lloverá.", reply)
}

func TestOpenAITimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, Request{Utterance: "hi"})
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
}

func TestOpenAIHardFailureIsNotTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Request{Utterance: "hi"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
}

type staticTokens string

func (s staticTokens) ServiceToken(time.Time) (string, error) { return string(s), nil }

func TestGatewayComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		var body gatewayChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what's on today", body.Message)
		assert.Equal(t, "en", body.Language)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"reply":"Two meetings."}`)
	}))
	defer srv.Close()

	g := NewGateway(GatewayConfig{BaseURL: srv.URL + "/"}, staticTokens("svc-token"))
	reply, err := g.Complete(context.Background(), Request{Utterance: "what's on today", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "Two meetings.", reply)
}

func TestGatewayEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"reply":"  "}`)
	}))
	defer srv.Close()

	_, err := NewGateway(GatewayConfig{BaseURL: srv.URL}, nil).Complete(context.Background(), Request{Utterance: "x"})
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt("", Request{Language: "xx", CallerName: "Ana", Spoken: true})
	assert.Contains(t, p, defaultSystemPrompt)
	assert.Contains(t, p, "the caller's language")
	assert.Contains(t, p, "Ana")
	assert.Contains(t, p, "no markdown")
}

func TestFromConfig(t *testing.T) {
	assert.IsType(t, Unavailable{}, FromConfig(config.LLMConfig{Provider: "openai"}, nil))
	assert.IsType(t, &OpenAI{}, FromConfig(config.LLMConfig{Provider: "openai", APIKey: "sk"}, nil))
	assert.IsType(t, Unavailable{}, FromConfig(config.LLMConfig{Provider: "gateway", BaseURL: "http://gw"}, nil))
	assert.IsType(t, &Gateway{}, FromConfig(config.LLMConfig{Provider: "gateway", BaseURL: "http://gw"}, staticTokens("t")))
	assert.IsType(t, Unavailable{}, FromConfig(config.LLMConfig{Provider: "other"}, nil))

	_, err := Unavailable{}.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
