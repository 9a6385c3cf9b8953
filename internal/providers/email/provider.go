package email

import (
	"context"
	"errors"
)

var ErrNoRecipients = errors.New("email_no_recipients")

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}
