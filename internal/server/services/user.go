// Package services contains the authentication core: the signup workflow
// (signup.go), the session workflow (session.go) and the user lookups below.
package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yanglog/yanglog/internal/common"
	"github.com/yanglog/yanglog/internal/logging"
	"github.com/yanglog/yanglog/internal/server/auth"
	"github.com/yanglog/yanglog/internal/server/credentials"
	"github.com/yanglog/yanglog/internal/server/mailer"
	"github.com/yanglog/yanglog/internal/server/models"
	"github.com/yanglog/yanglog/internal/server/repositories/repomanager"
)

// UserInfo is the public view of a user.
type UserInfo struct {
	ID    string
	Name  string
	Email string
}

// UserService implements signup, email verification and sessions on top of
// the user directory.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenIssuer
	hasher      credentials.Hasher
	mailer      mailer.Mailer
	logger      logging.Logger
	tracer      trace.Tracer

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.TokenIssuer,
	hasher credentials.Hasher, ml mailer.Mailer, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
		mailer:      ml,
		logger:      logger.With("module", "users"),
		tracer:      otel.Tracer("github.com/yanglog/yanglog/internal/server/services"),
	}
}

// startSpan opens a workflow span; records logged with the returned context
// carry its trace and span ids.
func (s *UserService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "users."+name)
}

// endSpan marks the span failed when err is set and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetUserInfo returns ErrUserNotFound for an unknown id.
func (s *UserService) GetUserInfo(ctx context.Context, id string) (*UserInfo, error) {
	user, err := s.repomanager.Users(s.db).GetUserByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(ctx, err)
	}
	return &UserInfo{ID: user.ID, Name: user.Name, Email: user.Email}, nil
}

// CheckUser reports whether id belongs to an existing user.
func (s *UserService) CheckUser(ctx context.Context, id string) error {
	_, err := s.GetUserInfo(ctx, id)
	return err
}

func (s *UserService) ListUsers(ctx context.Context) ([]*UserInfo, error) {
	list, err := s.repomanager.Users(s.db).List(ctx)
	if err != nil {
		s.logger.Error(ctx, "list users", "error", err)
		return nil, common.ErrorInternal
	}

	result := make([]*UserInfo, 0, len(list))
	for _, u := range list {
		result = append(result, &UserInfo{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	return result, nil
}

// lookupError maps a failed repository lookup to a service error.
func (s *UserService) lookupError(ctx context.Context, err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrUserNotFound
	}
	s.logger.Error(ctx, "user lookup", "error", err)
	return common.ErrorInternal
}

// checkCredentials loads the user by email and verifies the password. An
// unknown email is verified against a throwaway hash so both failures cost
// about the same.
func (s *UserService) checkCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(password, s.getDummyHash())
		}
		return nil, s.lookupError(ctx, err)
	}

	if !s.hasher.Verify(password, user.Password) {
		return nil, common.ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) getDummyHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("yanglog-dummy-password")
	})
	return s.dummyHash
}
