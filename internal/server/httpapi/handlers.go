package httpapi

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/clippio/accounts/internal/common"
	"github.com/clippio/accounts/internal/server/services"
)

// saveUpload writes a multipart file to a unique temp path and returns it
// with a cleanup func. A missing file is not an error: path is empty and
// cleanup is a no-op, so callers can treat the file as optional.
func (s *Server) saveUpload(c *fiber.Ctx, field string) (string, func(), error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return "", func() {}, nil
	}

	path := filepath.Join(os.TempDir(), uuid.New().String()+filepath.Ext(fh.Filename))
	if err := c.SaveFile(fh, path); err != nil {
		return "", func() {}, fmt.Errorf("save %s upload: %w", field, err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func (s *Server) setTokenCookies(c *fiber.Ctx, pair *services.TokenPair) {
	s.setCookie(c, common.AccessTokenCookieName, pair.AccessToken, time.Now().Add(s.accessTokenTTL))
	s.setCookie(c, common.RefreshTokenCookieName, pair.RefreshToken, time.Now().Add(s.refreshTokenTTL))
}

func (s *Server) clearTokenCookies(c *fiber.Ctx) {
	expired := time.Now().Add(-time.Hour)
	s.setCookie(c, common.AccessTokenCookieName, "", expired)
	s.setCookie(c, common.RefreshTokenCookieName, "", expired)
}

func (s *Server) setCookie(c *fiber.Ctx, name, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   s.secureCookies,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	avatarPath, cleanupAvatar, err := s.saveUpload(c, "avatar")
	if err != nil {
		return s.respondError(c, err)
	}
	defer cleanupAvatar()

	coverPath, cleanupCover, err := s.saveUpload(c, "coverImage")
	if err != nil {
		return s.respondError(c, err)
	}
	defer cleanupCover()

	user, err := s.users.Register(c.UserContext(), services.RegisterInput{
		FullName:       c.FormValue("fullName"),
		Email:          c.FormValue("email"),
		Password:       c.FormValue("password"),
		Username:       c.FormValue("username"),
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return respond(c, fiber.StatusCreated, "user registered successfully", user)
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, fmt.Errorf("%w: invalid request body", common.ErrorValidation))
	}

	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	user, pair, err := s.users.Login(c.UserContext(), identifier, req.Password)
	if err != nil {
		return s.respondError(c, err)
	}

	s.setTokenCookies(c, pair)
	return respond(c, fiber.StatusOK, "user logged in successfully", fiber.Map{
		"user":         user,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	token := c.Cookies(common.RefreshTokenCookieName)
	if token == "" {
		var req refreshRequest
		if err := c.BodyParser(&req); err == nil {
			token = req.RefreshToken
		}
	}

	pair, err := s.users.Refresh(c.UserContext(), token)
	if err != nil {
		return s.respondError(c, err)
	}

	s.setTokenCookies(c, pair)
	return respond(c, fiber.StatusOK, "access token refreshed", fiber.Map{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if err := s.users.Logout(c.UserContext(), currentUser(c).ID); err != nil {
		return s.respondError(c, err)
	}

	s.clearTokenCookies(c)
	return respond(c, fiber.StatusOK, "user logged out successfully", nil)
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	return respond(c, fiber.StatusOK, "current user fetched successfully", currentUser(c))
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, fmt.Errorf("%w: invalid request body", common.ErrorValidation))
	}

	if err := s.users.ChangePassword(c.UserContext(), currentUser(c).ID, req.OldPassword, req.NewPassword); err != nil {
		return s.respondError(c, err)
	}

	return respond(c, fiber.StatusOK, "password changed successfully", nil)
}

type updateProfileRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, fmt.Errorf("%w: invalid request body", common.ErrorValidation))
	}

	user, err := s.users.UpdateProfile(c.UserContext(), currentUser(c).ID, req.Email, req.FullName)
	if err != nil {
		return s.respondError(c, err)
	}

	return respond(c, fiber.StatusOK, "profile updated successfully", user)
}

func (s *Server) handleUpdateAvatar(c *fiber.Ctx) error {
	path, cleanup, err := s.saveUpload(c, "avatar")
	if err != nil {
		return s.respondError(c, err)
	}
	defer cleanup()

	user, err := s.users.UpdateAvatar(c.UserContext(), currentUser(c).ID, path)
	if err != nil {
		return s.respondError(c, err)
	}

	return respond(c, fiber.StatusOK, "avatar updated successfully", user)
}

func (s *Server) handleUpdateCoverImage(c *fiber.Ctx) error {
	path, cleanup, err := s.saveUpload(c, "coverImage")
	if err != nil {
		return s.respondError(c, err)
	}
	defer cleanup()

	user, err := s.users.UpdateCoverImage(c.UserContext(), currentUser(c).ID, path)
	if err != nil {
		return s.respondError(c, err)
	}

	return respond(c, fiber.StatusOK, "cover image updated successfully", user)
}
