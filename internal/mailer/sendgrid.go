package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	netmail "net/mail"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendEndpoint     = "/v3/mail/send"
	messagesEndpoint = "/v3/messages/"
	messageIDHeader  = "X-Message-Id"
)

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	apiKey  string
	host    string
	from    *mail.Email
	timeout time.Duration
}

// NewSendGridSender parses from as an RFC 5322 address ("Name <addr>").
func NewSendGridSender(apiKey, host, from string, timeoutMS int) (*SendGridSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sendgrid api key is empty")
	}
	addr, err := netmail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from, err)
	}
	return &SendGridSender{
		apiKey:  apiKey,
		host:    host,
		from:    mail.NewEmail(addr.Name, addr.Address),
		timeout: time.Duration(timeoutMS) * time.Millisecond,
	}, nil
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrEmptyRecipient
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	m := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail("", msg.To), msg.Text, msg.HTML)

	req := sendgrid.GetRequest(s.apiKey, sendEndpoint, s.host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("sendgrid send error: %w", err)
	}
	if resp.StatusCode >= 400 {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("body", resp.Body).
			Msg("SendGrid rejected message")
		return "", fmt.Errorf("sendgrid send failed: status=%d", resp.StatusCode)
	}

	messageID := http.Header(resp.Headers).Get(messageIDHeader)
	log.Debug().
		Str("to", msg.To).
		Str("message_id", messageID).
		Msg("Email sent")
	return messageID, nil
}

type messageStatus struct {
	Status    string `json:"status"`
	LastEvent string `json:"last_event"`
}

func (s *SendGridSender) Status(ctx context.Context, messageID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := sendgrid.GetRequest(s.apiKey, messagesEndpoint+url.PathEscape(messageID), s.host)
	req.Method = rest.Get

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return StatusUnknown, fmt.Errorf("sendgrid status error: %w", err)
	}
	if resp.StatusCode >= 400 {
		return StatusUnknown, fmt.Errorf("sendgrid status failed: status=%d", resp.StatusCode)
	}

	var st messageStatus
	if err := json.Unmarshal([]byte(resp.Body), &st); err != nil {
		return StatusUnknown, fmt.Errorf("failed to decode sendgrid status: %w", err)
	}

	switch {
	case st.LastEvent != "":
		return st.LastEvent, nil
	case st.Status != "":
		return st.Status, nil
	default:
		return StatusSent, nil
	}
}
