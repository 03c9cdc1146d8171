// Package notify delivers asynchronous answers through the single channel
// selected in configuration.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/twilio/twilio-go"

	"callbridge/internal/config"
)

var ErrNoRecipient = errors.New("notify: no recipient")

// Notification is one answer to deliver.
type Notification struct {
	ID              string `json:"id"`
	CallerNumber    string `json:"caller_number"`
	CallerName      string `json:"caller_name,omitempty"`
	Language        string `json:"language"`
	DestinationHint string `json:"destination_hint,omitempty"`
	Question        string `json:"question"`
	Answer          string `json:"answer"`
}

// Notifier sends one Notification. Send is attempted once; retries are not
// the notifier's concern.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// TokenSource mints bearer tokens for the gateway relay.
type TokenSource interface {
	ServiceToken(now time.Time) (string, error)
}

// Text renders n as a plain message body.
func Text(n Notification) string {
	var b strings.Builder
	who := n.CallerName
	if who == "" {
		who = n.CallerNumber
	}
	if n.Language == "es" {
		fmt.Fprintf(&b, "Respuesta para %s\n\n", who)
		fmt.Fprintf(&b, "Pregunta: %s\n\n", n.Question)
	} else {
		fmt.Fprintf(&b, "Follow-up for %s\n\n", who)
		fmt.Fprintf(&b, "You asked: %s\n\n", n.Question)
	}
	b.WriteString(n.Answer)
	return b.String()
}

// New builds the notifier for cfg.Method. A nil Notifier with nil error means
// delivery is disabled.
func New(cfg config.EscalationConfig, tw config.TwilioConfig, tokens TokenSource) (Notifier, error) {
	httpClient := resty.New().SetTimeout(15 * time.Second)

	switch cfg.Method {
	case "":
		return nil, nil
	case "gateway":
		if tokens == nil {
			return nil, errors.New("notify: gateway needs a token source")
		}
		return NewGateway(httpClient, cfg.Gateway.URL, tokens), nil
	case "telegram":
		return NewTelegram(httpClient, cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID), nil
	case "sms":
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: tw.AccountSID,
			Password: tw.AuthToken,
		})
		return NewSMS(client.Api, cfg.SMS.From, cfg.SMS.To), nil
	case "webhook":
		return NewWebhook(httpClient, cfg.Webhook.URL, cfg.Webhook.Headers), nil
	default:
		return nil, fmt.Errorf("notify: unsupported method %q", cfg.Method)
	}
}
