package mailer

import (
	"context"

	"github.com/yanglog/yanglog/internal/logging"
)

// LogMailer writes the verification link to the log instead of sending it.
type LogMailer struct {
	logger  logging.Logger
	baseURL string
}

func NewLogMailer(logger logging.Logger, baseURL string) *LogMailer {
	return &LogMailer{logger: logger.With("module", "mailer"), baseURL: baseURL}
}

func (m *LogMailer) SendMemberJoinVerification(ctx context.Context, email, token string) error {
	m.logger.Info(ctx, "verification mail", "email", email, "link", VerificationURL(m.baseURL, token))
	return nil
}
