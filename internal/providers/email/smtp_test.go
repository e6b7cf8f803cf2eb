package email

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessageMultipart(t *testing.T) {
	raw, err := buildMessage("billing@example.com", Message{
		To:       []string{"client@example.com"},
		Subject:  "Invoice INV-000001",
		HTMLBody: "<p>hello</p>",
		Attachments: []Attachment{
			{Filename: "inv-000001.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
		},
	})
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, "client@example.com", parsed.Header.Get("To"))

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])
	first, err := reader.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(first)
	require.NoError(t, err)
	assert.Equal(t, "<p>hello</p>", string(body))

	second, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "inv-000001.pdf", second.FileName())
	assert.Equal(t, "application/pdf", second.Header.Get("Content-Type"))
}

func TestSMTPSendPropagatesFailure(t *testing.T) {
	provider := NewSMTP(Config{Host: "smtp.example.com", Port: 25, From: "billing@example.com"})
	provider.sendMail = func(addr string, _ smtp.Auth, from string, to []string, _ []byte) error {
		assert.Equal(t, "smtp.example.com:25", addr)
		assert.Equal(t, []string{"a@example.com"}, to)
		return errors.New("connection refused")
	}

	err := provider.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "x"})
	assert.EqualError(t, err, "connection refused")
}

func TestSMTPSendRequiresRecipient(t *testing.T) {
	provider := NewSMTP(Config{Host: "smtp.example.com", Port: 25})
	assert.Error(t, provider.Send(context.Background(), Message{Subject: "x"}))
}

func TestUnconfiguredRefuses(t *testing.T) {
	assert.ErrorIs(t, Unconfigured{}.Send(context.Background(), Message{}), ErrNotConfigured)
}
