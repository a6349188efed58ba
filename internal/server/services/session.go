package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yanglog/yanglog/internal/common"
	"github.com/yanglog/yanglog/internal/server/auth"
)

// Login checks the credentials and returns an access token only.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.checkCredentials(ctx, email, password)
	if err != nil {
		return "", err
	}

	access, err := s.tokens.IssueAccessToken(user.ID, user.Name)
	if err != nil {
		s.logger.Error(ctx, "issue access token", "error", err)
		return "", common.ErrorInternal
	}
	return access, nil
}

// Signin checks the credentials, issues a token pair and stores the refresh
// token hash, replacing any previous session of the user.
func (s *UserService) Signin(ctx context.Context, email, password string) (_ *auth.TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "Signin")
	defer func() { endSpan(span, err) }()

	user, err := s.checkCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	pair, hash, err := s.issuePair(ctx, user.ID, user.Name)
	if err != nil {
		return nil, err
	}

	if err := s.repomanager.Users(s.db).UpdateRefreshToken(ctx, user.ID, hash); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		s.logger.Error(ctx, "store refresh token", "user_id", user.ID, "error", err)
		return nil, common.ErrPersistence
	}

	return pair, nil
}

// RefreshTokens rotates the session of user id. The presented token must
// match the stored hash; afterwards it is no longer accepted. Every
// rejection is ErrUserNotFound.
func (s *UserService) RefreshTokens(ctx context.Context, id, refreshToken string) (_ *auth.TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "RefreshTokens")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("user.id", id))

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(ctx, err)
	}

	if user.RefreshToken == "" || !s.hasher.Verify(refreshToken, user.RefreshToken) {
		s.logger.Warn(ctx, "refresh rejected", "user_id", id)
		return nil, common.ErrUserNotFound
	}

	pair, hash, err := s.issuePair(ctx, user.ID, user.Name)
	if err != nil {
		return nil, err
	}

	if err := repo.SwapRefreshToken(ctx, user.ID, user.RefreshToken, hash); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "refresh lost to a concurrent rotation", "user_id", id)
			return nil, common.ErrUserNotFound
		}
		s.logger.Error(ctx, "rotate refresh token", "user_id", id, "error", err)
		return nil, common.ErrPersistence
	}

	return pair, nil
}

// Logout clears the stored refresh hash. Unknown users are not an error.
func (s *UserService) Logout(ctx context.Context, id string) (err error) {
	ctx, span := s.startSpan(ctx, "Logout")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("user.id", id))

	if uerr := s.repomanager.Users(s.db).UpdateRefreshToken(ctx, id, ""); uerr != nil && !errors.Is(uerr, common.ErrorNotFound) {
		s.logger.Error(ctx, "clear refresh token", "user_id", id, "error", uerr)
		return common.ErrPersistence
	}
	s.logger.Info(ctx, "logged out", "user_id", id)
	return nil
}

func (s *UserService) issuePair(ctx context.Context, userID, userName string) (*auth.TokenPair, string, error) {
	pair, err := s.tokens.IssuePair(userID, userName)
	if err != nil {
		s.logger.Error(ctx, "issue token pair", "error", err)
		return nil, "", common.ErrorInternal
	}

	hash, err := s.hasher.Hash(pair.RefreshToken)
	if err != nil {
		s.logger.Error(ctx, "hash refresh token", "error", err)
		return nil, "", common.ErrorInternal
	}
	return pair, hash, nil
}
