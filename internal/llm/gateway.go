package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// TokenSource mints bearer tokens for service-to-service calls.
type TokenSource interface {
	ServiceToken(now time.Time) (string, error)
}

// GatewayConfig points at an agent gateway exposing POST /v1/chat.
type GatewayConfig struct {
	BaseURL      string
	SystemPrompt string
}

// Gateway relays utterances to an upstream agent gateway.
type Gateway struct {
	cfg    GatewayConfig
	http   *resty.Client
	tokens TokenSource
}

func NewGateway(cfg GatewayConfig, tokens TokenSource) *Gateway {
	return &Gateway{
		cfg:    cfg,
		http:   resty.New().SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		tokens: tokens,
	}
}

type gatewayChatRequest struct {
	Message      string `json:"message"`
	Language     string `json:"language"`
	CallerName   string `json:"caller_name,omitempty"`
	SystemPrompt string `json:"system_prompt"`
}

type gatewayChatResponse struct {
	Reply string `json:"reply"`
}

func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	if g.cfg.BaseURL == "" {
		return "", ErrNotConfigured
	}
	r := g.http.R().SetContext(ctx)
	if g.tokens != nil {
		tok, err := g.tokens.ServiceToken(time.Now())
		if err != nil {
			return "", fmt.Errorf("llm: gateway token: %w", err)
		}
		r.SetAuthToken(tok)
	}

	var out gatewayChatResponse
	resp, err := r.
		SetBody(gatewayChatRequest{
			Message:      req.Utterance,
			Language:     req.Language,
			CallerName:   req.CallerName,
			SystemPrompt: SystemPrompt(g.cfg.SystemPrompt, req),
		}).
		SetResult(&out).
		Post("/v1/chat")
	if err != nil {
		return "", classify(ctx, fmt.Errorf("llm: gateway: %w", err))
	}
	if resp.IsError() {
		return "", fmt.Errorf("llm: gateway: status %d", resp.StatusCode())
	}
	if strings.TrimSpace(out.Reply) == "" {
		return "", ErrEmptyReply
	}
	return out.Reply, nil
}
