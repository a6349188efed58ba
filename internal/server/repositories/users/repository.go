package users

import (
	"context"

	"github.com/yanglog/yanglog/internal/server/models"
)

// Repository is the user directory. Lookups return common.ErrorNotFound when
// no row matches.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByVerifyToken(ctx context.Context, token string) (*models.User, error)
	UpdateRefreshToken(ctx context.Context, id, hash string) error
	SwapRefreshToken(ctx context.Context, id, expectedHash, newHash string) error
	List(ctx context.Context) ([]*models.User, error)
}
