package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const signupVerificationEvent = "user.signup_verification"

// SignupVerificationEvent is published for the notification worker, which
// renders and delivers the actual mail.
type SignupVerificationEvent struct {
	EventType string    `json:"event_type"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

type NatsMailer struct {
	conn    publisher
	subject string
	baseURL string
	close   func() error
}

// NewNatsMailer connects to natsURL. Call Close to drain the connection.
func NewNatsMailer(natsURL, subject, baseURL string) (*NatsMailer, error) {
	nc, err := nats.Connect(natsURL, nats.Name("yanglog-authctl"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NatsMailer{conn: nc, subject: subject, baseURL: baseURL, close: nc.Drain}, nil
}

func (m *NatsMailer) SendMemberJoinVerification(ctx context.Context, email, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(SignupVerificationEvent{
		EventType: signupVerificationEvent,
		Email:     email,
		Token:     token,
		Link:      VerificationURL(m.baseURL, token),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := m.conn.Publish(m.subject, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (m *NatsMailer) Close() error {
	if m.close == nil {
		return nil
	}
	return m.close()
}
