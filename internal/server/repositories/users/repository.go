package users

import (
	"context"

	"github.com/clippio/accounts/internal/server/models"
)

// Repository is the storage boundary for user records. Mutating methods
// touch only the columns they name, which is what lets single-field writes
// skip full-record validation.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByLogin(ctx context.Context, identifier string) (*models.User, error)
	GetPasswordHash(ctx context.Context, id string) (string, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	UpdateRefreshToken(ctx context.Context, id, token string) error
	// RotateRefreshToken atomically replaces oldToken with newToken and
	// reports whether the stored value still matched oldToken. A false
	// result means the token was already rotated or cleared.
	RotateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error

	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id, email, fullName string) (*models.User, error)
	UpdateAvatar(ctx context.Context, id, avatarURL string) (*models.User, error)
	UpdateCoverImage(ctx context.Context, id, coverImageURL string) (*models.User, error)
}
