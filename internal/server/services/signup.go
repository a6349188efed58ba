package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yanglog/yanglog/internal/common"
	"github.com/yanglog/yanglog/internal/dbx"
	"github.com/yanglog/yanglog/internal/server/models"
)

// CreateUser registers a user and sends the verification mail.
//
// The row is written inside a transaction; the mail goes out only after the
// commit. A failed dispatch is logged and does not undo the signup.
// Errors: ErrDuplicateEmail, ErrPersistence.
func (s *UserService) CreateUser(ctx context.Context, name, email, password string) (err error) {
	ctx, span := s.startSpan(ctx, "CreateUser")
	defer func() { endSpan(span, err) }()

	_, err = s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return common.ErrDuplicateEmail
	case !errors.Is(err, common.ErrorNotFound):
		s.logger.Error(ctx, "signup uniqueness check", "error", err)
		return common.ErrPersistence
	}

	verifyToken, err := uuid.NewUUID()
	if err != nil {
		return fmt.Errorf("%w: verify token: %v", common.ErrorInternal, err)
	}

	user, err := s.newUser(name, email, password, verifyToken.String())
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repomanager.Users(tx).Create(ctx, user)
		return err
	})
	if err != nil {
		var rbErr *dbx.RollbackError
		if errors.As(err, &rbErr) {
			s.logger.Error(ctx, "signup rollback failed", "error", rbErr.Rollback)
		}
		if errors.Is(err, common.ErrDuplicateEmail) {
			return common.ErrDuplicateEmail
		}
		s.logger.Error(ctx, "signup persist", "error", err)
		return common.ErrPersistence
	}

	s.logger.Info(ctx, "user created", "user_id", user.ID)

	if err := s.mailer.SendMemberJoinVerification(ctx, email, user.SignupVerifyToken); err != nil {
		s.logger.Error(ctx, "verification mail not sent", "user_id", user.ID, "error", err)
	}

	return nil
}

// VerifyEmail treats a known verification token as a login and returns an
// access token. The token stays valid after use.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (string, error) {
	user, err := s.repomanager.Users(s.db).GetUserByVerifyToken(ctx, token)
	if err != nil {
		return "", s.lookupError(ctx, err)
	}

	access, err := s.tokens.IssueAccessToken(user.ID, user.Name)
	if err != nil {
		s.logger.Error(ctx, "issue access token", "error", err)
		return "", common.ErrorInternal
	}
	return access, nil
}

func (s *UserService) newUser(name, email, password, verifyToken string) (*models.User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: user id: %v", common.ErrorInternal, err)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", common.ErrorInternal, err)
	}

	return &models.User{
		ID:                id.String(),
		Name:              name,
		Email:             email,
		Password:          hashed,
		SignupVerifyToken: verifyToken,
	}, nil
}
