// Package mailer delivers signup verification messages. Delivery is owned by
// an external service (SendGrid or a NATS notification worker); the log
// driver is meant for development.
package mailer

import (
	"context"
	"net/url"
)

// Mailer sends the member-join verification message for a new account.
type Mailer interface {
	SendMemberJoinVerification(ctx context.Context, email, token string) error
}

// VerificationURL appends the token to base as the signupVerifyToken query
// parameter, keeping any parameters base already has.
func VerificationURL(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?signupVerifyToken=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("signupVerifyToken", token)
	u.RawQuery = q.Encode()
	return u.String()
}
