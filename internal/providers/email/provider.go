package email

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("email_not_configured")

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Provider delivers a message or returns an error; it never reports success for
// a message it did not hand off.
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// Unconfigured refuses every message. It is used when no SMTP host is set.
type Unconfigured struct{}

func (Unconfigured) Send(context.Context, Message) error {
	return ErrNotConfigured
}
