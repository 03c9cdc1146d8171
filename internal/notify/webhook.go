package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Webhook posts the notification as JSON to a fixed URL.
type Webhook struct {
	http    *resty.Client
	url     string
	headers map[string]string
}

func NewWebhook(client *resty.Client, url string, headers map[string]string) *Webhook {
	return &Webhook{http: client, url: url, headers: headers}
}

func (w *Webhook) Name() string { return "webhook" }

type webhookPayload struct {
	Notification
	Text string `json:"text"`
}

func (w *Webhook) Send(ctx context.Context, n Notification) error {
	resp, err := w.http.R().
		SetContext(ctx).
		SetHeaders(w.headers).
		SetBody(webhookPayload{Notification: n, Text: Text(n)}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("notify: webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify: webhook: status %d", resp.StatusCode())
	}
	return nil
}
