package notify

import (
	"context"
	"fmt"

	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageCreator is the slice of the Twilio REST client SMS needs.
type MessageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// SMS sends through the carrier. The recipient is the configured override,
// then the destination hint, then the caller's own number.
type SMS struct {
	api  MessageCreator
	from string
	to   string
}

func NewSMS(api MessageCreator, from, to string) *SMS {
	return &SMS{api: api, from: from, to: to}
}

func (s *SMS) Name() string { return "sms" }

// maxSMSChars keeps a reply within a handful of concatenated segments.
const maxSMSChars = 1200

func (s *SMS) Send(ctx context.Context, n Notification) error {
	to := s.to
	if to == "" {
		to = n.DestinationHint
	}
	if to == "" {
		to = n.CallerNumber
	}
	if to == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body := []rune(Text(n))
	if len(body) > maxSMSChars {
		body = append(body[:maxSMSChars-1], '…')
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(string(body))

	if _, err := s.api.CreateMessage(params); err != nil {
		return fmt.Errorf("notify: sms: %w", err)
	}
	return nil
}
