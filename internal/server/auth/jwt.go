// Package auth issues and parses the signed access and refresh tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yanglog/yanglog/internal/common"
)

// Claims carries the user identity: the standard "sub" holds the user id,
// "username" the display name.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// GenerateToken signs an HS256 token for the user that expires after
// validityDuration. Every token gets a random jti, so two tokens issued in
// the same second still differ.
func GenerateToken(userID, userName string, secretKey []byte, validityDuration time.Duration) (string, error) {
	if len(secretKey) == 0 {
		return "", fmt.Errorf("%w: empty signing key", common.ErrConfiguration)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Username: userName,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies the signature and expiry and returns the claims.
// Expired tokens yield common.ErrTokenExpired, anything else that fails
// common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// TokenIssuer mints access and refresh tokens with two independent secrets.
type TokenIssuer struct {
	accessSecret                 []byte
	refreshSecret                []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewTokenIssuer fails with common.ErrConfiguration when a secret is missing
// or both secrets are the same.
func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("%w: signing secrets are required", common.ErrConfiguration)
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", common.ErrConfiguration)
	}
	return &TokenIssuer{
		accessSecret:                 []byte(accessSecret),
		refreshSecret:                []byte(refreshSecret),
		accessTokenValidityDuration:  accessTTL,
		refreshTokenValidityDuration: refreshTTL,
	}, nil
}

func (i *TokenIssuer) IssueAccessToken(userID, userName string) (string, error) {
	return GenerateToken(userID, userName, i.accessSecret, i.accessTokenValidityDuration)
}

func (i *TokenIssuer) IssuePair(userID, userName string) (*TokenPair, error) {
	access, err := i.IssueAccessToken(userID, userName)
	if err != nil {
		return nil, err
	}
	refresh, err := GenerateToken(userID, userName, i.refreshSecret, i.refreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *TokenIssuer) ParseAccessToken(token string) (*Claims, error) {
	return ParseToken(token, i.accessSecret)
}

func (i *TokenIssuer) ParseRefreshToken(token string) (*Claims, error) {
	return ParseToken(token, i.refreshSecret)
}
