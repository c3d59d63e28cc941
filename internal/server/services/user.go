// Package services contains server-side business logic. This file implements
// UserService: registration with media uploads, login, refresh-token
// rotation, logout, and profile/credential mutation.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clippio/accounts/internal/common"
	"github.com/clippio/accounts/internal/dbx"
	"github.com/clippio/accounts/internal/server/auth"
	"github.com/clippio/accounts/internal/server/config"
	"github.com/clippio/accounts/internal/server/media"
	"github.com/clippio/accounts/internal/server/models"
	"github.com/clippio/accounts/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Hasher is the credential-hashing dependency of UserService.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, verifier string) bool
}

// RegisterInput carries the registration form: text fields plus local paths
// of the already-received upload files. CoverImagePath may be empty.
type RegisterInput struct {
	FullName       string
	Email          string
	Password       string
	Username       string
	AvatarPath     string
	CoverImagePath string
}

// UserService provides account and session operations:
//   - Register: create users, pushing their images to the media store
//   - Login: verify credentials and mint a token pair
//   - Refresh: rotate the stored refresh token and mint a new pair
//   - Logout: revoke the stored refresh token
//   - ChangePassword / UpdateProfile / UpdateAvatar / UpdateCoverImage
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	hasher                       Hasher
	uploader                     media.Uploader
	accessTokenSecret            []byte
	refreshTokenSecret           []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService from its dependencies and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, hasher Hasher, uploader media.Uploader, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		hasher:                       hasher,
		uploader:                     uploader,
		accessTokenSecret:            []byte(cfg.AccessTokenSecret),
		refreshTokenSecret:           []byte(cfg.RefreshTokenSecret),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// Register creates a new user. The username is stored lowercase; avatar is
// mandatory, cover image optional. Images are uploaded before the row is
// written, so an upload failure leaves no user behind.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if blank(in.FullName) || blank(in.Email) || blank(in.Password) || blank(in.Username) {
		return nil, fmt.Errorf("%w: all fields are required", common.ErrorValidation)
	}
	if in.AvatarPath == "" {
		return nil, fmt.Errorf("%w: avatar is required", common.ErrorValidation)
	}

	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.TrimSpace(in.Email)

	repo := s.repomanager.Users(s.db)

	exists, err := repo.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if exists {
		return nil, fmt.Errorf("%w: username or email is taken", common.ErrorAlreadyExists)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	avatarURL, err := s.uploader.Upload(ctx, in.AvatarPath)
	if err != nil {
		return nil, fmt.Errorf("%w: avatar upload failed", common.ErrorInternal)
	}

	var coverImageURL string
	if in.CoverImagePath != "" {
		coverImageURL, err = s.uploader.Upload(ctx, in.CoverImagePath)
		if err != nil {
			return nil, fmt.Errorf("%w: cover image upload failed", common.ErrorInternal)
		}
	}

	user, err := repo.Create(ctx, &models.User{
		Username:      username,
		Email:         email,
		FullName:      strings.TrimSpace(in.FullName),
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
		PasswordHash:  hash,
	})
	if err != nil {
		// the existence check races with concurrent registrations; the
		// unique constraint is the authority
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, fmt.Errorf("%w: username or email is taken", common.ErrorAlreadyExists)
		}
		return nil, common.ErrorInternal
	}

	return user.Sanitize(), nil
}

// Login verifies the identifier/password pair and, on success, returns the
// sanitized user and a fresh token pair. The refresh token is persisted as
// the user's single valid session token.
func (s *UserService) Login(ctx context.Context, identifier, pass string) (*models.User, *TokenPair, error) {
	if blank(identifier) || blank(pass) {
		return nil, nil, fmt.Errorf("%w: identifier and password are required", common.ErrorValidation)
	}

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByLogin(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorNotFound
		}
		return nil, nil, common.ErrorInternal
	}

	if !s.hasher.Verify(pass, user.PasswordHash) {
		return nil, nil, fmt.Errorf("%w: invalid credentials", common.ErrorUnauthorized)
	}

	pair, err := s.generateTokenPair(ctx, user.ID, s.db)
	if err != nil {
		return nil, nil, err
	}

	return user.Sanitize(), pair, nil
}

// Refresh exchanges a valid refresh token for a new token pair, rotating
// the stored token so the incoming one cannot be used again. A token that
// no longer matches the stored value (rotated, logged out, stolen) fails
// with common.ErrorUnauthorized.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if blank(refreshToken) {
		return nil, fmt.Errorf("%w: refresh token is required", common.ErrorValidation)
	}

	userID, err := auth.GetUserIDFromToken(refreshToken, s.refreshTokenSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: refresh token expired", common.ErrorUnauthorized)
		}
		return nil, fmt.Errorf("%w: invalid refresh token", common.ErrorUnauthorized)
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		if _, err := repo.GetByID(ctx, userID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorNotFound
			}
			return common.ErrorInternal
		}

		access, newRefresh, err := s.mintTokens(userID)
		if err != nil {
			return common.ErrorInternal
		}

		swapped, err := repo.RotateRefreshToken(ctx, userID, refreshToken, newRefresh)
		if err != nil {
			return common.ErrorInternal
		}
		if !swapped {
			return fmt.Errorf("%w: stale refresh token", common.ErrorUnauthorized)
		}

		pair = &TokenPair{AccessToken: access, RefreshToken: newRefresh}
		return nil
	}); err != nil {
		return nil, err
	}

	return pair, nil
}

// Logout revokes the user's stored refresh token. Logging out twice is not
// an error.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	repo := s.repomanager.Users(s.db)
	if err := repo.ClearRefreshToken(ctx, userID); err != nil {
		return common.ErrorInternal
	}
	return nil
}

// GetByID returns the sanitized user record.
func (s *UserService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}

	return user, nil
}

// ChangePassword verifies the old password and stores a hash of the new
// one. The read and write run in one transaction so a concurrent change
// cannot interleave.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if blank(oldPassword) || blank(newPassword) {
		return fmt.Errorf("%w: old and new passwords are required", common.ErrorValidation)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		hash, err := repo.GetPasswordHash(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorNotFound
			}
			return common.ErrorInternal
		}

		if !s.hasher.Verify(oldPassword, hash) {
			return fmt.Errorf("%w: old password is incorrect", common.ErrorUnauthorized)
		}

		newHash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return common.ErrorInternal
		}

		if err := repo.UpdatePassword(ctx, userID, newHash); err != nil {
			return common.ErrorInternal
		}
		return nil
	})
}

// UpdateProfile changes the user's email and full name.
func (s *UserService) UpdateProfile(ctx context.Context, userID, email, fullName string) (*models.User, error) {
	if blank(email) || blank(fullName) {
		return nil, fmt.Errorf("%w: email and full name are required", common.ErrorValidation)
	}

	repo := s.repomanager.Users(s.db)

	user, err := repo.UpdateProfile(ctx, userID, strings.TrimSpace(email), strings.TrimSpace(fullName))
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			return nil, common.ErrorNotFound
		case errors.Is(err, common.ErrorAlreadyExists):
			return nil, fmt.Errorf("%w: email is taken", common.ErrorAlreadyExists)
		default:
			return nil, common.ErrorInternal
		}
	}

	return user, nil
}

// UpdateAvatar uploads a new avatar and stores its URL.
func (s *UserService) UpdateAvatar(ctx context.Context, userID, localFilePath string) (*models.User, error) {
	return s.updateImage(ctx, userID, localFilePath, "avatar",
		s.repomanager.Users(s.db).UpdateAvatar)
}

// UpdateCoverImage uploads a new cover image and stores its URL.
func (s *UserService) UpdateCoverImage(ctx context.Context, userID, localFilePath string) (*models.User, error) {
	return s.updateImage(ctx, userID, localFilePath, "cover image",
		s.repomanager.Users(s.db).UpdateCoverImage)
}

func (s *UserService) updateImage(ctx context.Context, userID, localFilePath, kind string,
	store func(ctx context.Context, id, url string) (*models.User, error)) (*models.User, error) {

	if localFilePath == "" {
		return nil, fmt.Errorf("%w: %s is required", common.ErrorValidation, kind)
	}

	url, err := s.uploader.Upload(ctx, localFilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s upload failed", common.ErrorInternal, kind)
	}

	user, err := store(ctx, userID, url)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}

	return user, nil
}

// --- helpers below ---

func (s *UserService) mintTokens(userID string) (access string, refresh string, err error) {
	access, err = auth.GenerateToken(userID, s.accessTokenSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", "", err
	}
	refresh, err = auth.GenerateToken(userID, s.refreshTokenSecret, s.refreshTokenValidityDuration)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, refresh, err := s.mintTokens(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}

	repo := s.repomanager.Users(tx)
	if err := repo.UpdateRefreshToken(ctx, userID, refresh); err != nil {
		return nil, common.ErrorInternal
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
