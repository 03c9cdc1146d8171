package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Gateway relays the notification to an upstream messaging gateway using a
// short-lived service JWT.
type Gateway struct {
	http   *resty.Client
	url    string
	tokens TokenSource
}

func NewGateway(client *resty.Client, url string, tokens TokenSource) *Gateway {
	return &Gateway{http: client, url: url, tokens: tokens}
}

func (g *Gateway) Name() string { return "gateway" }

type gatewayPayload struct {
	Channel string       `json:"channel"`
	Message Notification `json:"message"`
	Text    string       `json:"text"`
}

func (g *Gateway) Send(ctx context.Context, n Notification) error {
	tok, err := g.tokens.ServiceToken(time.Now())
	if err != nil {
		return fmt.Errorf("notify: gateway token: %w", err)
	}
	resp, err := g.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetBody(gatewayPayload{Channel: "callbridge", Message: n, Text: Text(n)}).
		Post(g.url)
	if err != nil {
		return fmt.Errorf("notify: gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify: gateway: status %d", resp.StatusCode())
	}
	return nil
}
