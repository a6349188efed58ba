package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const verificationSubject = "Confirm your yanglog account"

// sender is the part of *sendgrid.Client the mailer uses.
type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridMailer struct {
	client  sender
	from    *mail.Email
	baseURL string
}

func NewSendGridMailer(apiKey, fromName, fromAddress, baseURL string) *SendGridMailer {
	return &SendGridMailer{
		client:  sendgrid.NewSendClient(apiKey),
		from:    mail.NewEmail(fromName, fromAddress),
		baseURL: baseURL,
	}
}

func (m *SendGridMailer) SendMemberJoinVerification(ctx context.Context, email, token string) error {
	link := VerificationURL(m.baseURL, token)

	plain := fmt.Sprintf("Welcome to yanglog! Confirm your email address by opening %s", link)
	html := fmt.Sprintf(`<p>Welcome to yanglog!</p><p><a href="%s">Confirm your email address</a></p>`, link)

	message := mail.NewSingleEmail(m.from, verificationSubject, mail.NewEmail("", email), plain, html)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: unexpected status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
