package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSendBuildsMessage(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.test", Port: 2525, From: "no-reply@affiliora.test"})
	var gotAddr string
	var gotTo []string
	var gotMsg string
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := p.Send(context.Background(), []string{" buyer@example.com ", ""}, "Order\nconfirmed", "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, "mail.test:2525", gotAddr)
	assert.Equal(t, []string{"buyer@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Order confirmed\r\n")
	assert.Contains(t, gotMsg, "To: buyer@example.com\r\n")
	assert.Contains(t, gotMsg, "\r\n\r\n<p>hi</p>")
}

func TestSMTPSendRequiresRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.test", Port: 25})
	err := p.Send(context.Background(), []string{" "}, "s", "b")
	assert.ErrorIs(t, err, ErrNoRecipients)
}
