package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Telegram sends through the Bot API sendMessage method. A destination hint
// on the notification overrides the default chat id.
type Telegram struct {
	http    *resty.Client
	baseURL string
	token   string
	chatID  string
}

func NewTelegram(client *resty.Client, baseURL, token, chatID string) *Telegram {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Telegram{http: client, baseURL: strings.TrimRight(baseURL, "/"), token: token, chatID: chatID}
}

func (t *Telegram) Name() string { return "telegram" }

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, n Notification) error {
	chat := n.DestinationHint
	if chat == "" {
		chat = t.chatID
	}
	if chat == "" {
		return ErrNoRecipient
	}

	var out telegramResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": chat, "text": Text(n)}).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token))
	if err != nil {
		return fmt.Errorf("notify: telegram: %w", err)
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("notify: telegram: status %d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}
