package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clippio/accounts/internal/common"
	"github.com/clippio/accounts/internal/dbx"
	"github.com/clippio/accounts/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// sanitizedColumns is the projection returned to callers; password_hash and
// refresh_token are only selected by the dedicated lookups that need them.
const sanitizedColumns = "id, username, email, full_name, avatar_url, cover_image_url, created_at, updated_at"

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// Create inserts a new user row. A unique-constraint violation on username
// or email is reported as common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, email, full_name, avatar_url, cover_image_url, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.FullName, user.AvatarURL, user.CoverImageURL, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// GetByID returns the sanitized projection of a user.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + sanitizedColumns + ` FROM users WHERE id = $1`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.AvatarURL, &user.CoverImageURL, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// GetByLogin resolves a username or email to a user record including the
// password hash, for credential verification.
func (r *PostgresRepository) GetByLogin(ctx context.Context, identifier string) (*models.User, error) {
	query := `
		SELECT ` + sanitizedColumns + `, password_hash FROM users
		WHERE username = lower($1) OR lower(email) = lower($1)
	`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, identifier).Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.AvatarURL, &user.CoverImageURL, &user.CreatedAt, &user.UpdatedAt,
		&user.PasswordHash)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// GetPasswordHash returns only the stored verifier for a user.
func (r *PostgresRepository) GetPasswordHash(ctx context.Context, id string) (string, error) {
	query := `SELECT password_hash FROM users WHERE id = $1`

	var hash string
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return hash, nil
}

// ExistsByUsernameOrEmail reports whether any user already claims the given
// username or email.
func (r *PostgresRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR lower(email) = lower($2))`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

// UpdateRefreshToken stores token as the single valid refresh token for the
// user, replacing whatever was there.
func (r *PostgresRepository) UpdateRefreshToken(ctx context.Context, id, token string) error {
	query := `UPDATE users SET refresh_token = $2, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRowAffected(res)
}

// RotateRefreshToken is a compare-and-swap on the refresh_token column: the
// new token is written only if the stored value still equals oldToken. Two
// concurrent rotations of the same token resolve here, where at most one
// UPDATE matches a row.
func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error) {
	query := `
		UPDATE users SET refresh_token = $3, updated_at = now()
		WHERE id = $1 AND refresh_token = $2
	`

	res, err := r.db.ExecContext(ctx, query, id, oldToken, newToken)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n > 0, nil
}

// ClearRefreshToken drops the stored refresh token. Clearing an already
// absent token is not an error.
func (r *PostgresRepository) ClearRefreshToken(ctx context.Context, id string) error {
	query := `UPDATE users SET refresh_token = NULL, updated_at = now() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored verifier.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRowAffected(res)
}

// UpdateProfile updates email and full name, returning the sanitized user.
// A duplicate email is reported as common.ErrorAlreadyExists.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, email, fullName string) (*models.User, error) {
	query := `
		UPDATE users SET email = $2, full_name = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + sanitizedColumns

	user, err := r.scanUpdated(ctx, query, id, email, fullName)
	if err != nil && isUniqueViolation(err) {
		return nil, common.ErrorAlreadyExists
	}
	return user, err
}

// UpdateAvatar stores a new avatar URL, returning the sanitized user.
func (r *PostgresRepository) UpdateAvatar(ctx context.Context, id, avatarURL string) (*models.User, error) {
	query := `
		UPDATE users SET avatar_url = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + sanitizedColumns

	return r.scanUpdated(ctx, query, id, avatarURL)
}

// UpdateCoverImage stores a new cover image URL, returning the sanitized user.
func (r *PostgresRepository) UpdateCoverImage(ctx context.Context, id, coverImageURL string) (*models.User, error) {
	query := `
		UPDATE users SET cover_image_url = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + sanitizedColumns

	return r.scanUpdated(ctx, query, id, coverImageURL)
}

func (r *PostgresRepository) scanUpdated(ctx context.Context, query string, args ...any) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.AvatarURL, &user.CoverImageURL, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
