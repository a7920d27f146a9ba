// Package mailer delivers activation and invitation emails and looks up
// their delivery status with the email provider.
package mailer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Delivery statuses recorded on licenses.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusUnknown = "unknown"
)

var ErrEmptyRecipient = errors.New("recipient address is empty")

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender is an email provider.
type Sender interface {
	// Send delivers msg and returns the provider's message id.
	Send(ctx context.Context, msg Message) (string, error)
	// Status returns the provider's latest delivery event for messageID.
	Status(ctx context.Context, messageID string) (string, error)
}

// LogSender writes messages to the log instead of delivering them. Used in
// dev when no provider key is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrEmptyRecipient
	}
	id := "dev-" + uuid.NewString()
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("message_id", id).
		Msg("Email not sent (log sender)")
	return id, nil
}

func (LogSender) Status(_ context.Context, _ string) (string, error) {
	return "delivered", nil
}
