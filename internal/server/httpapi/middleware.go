package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/clippio/accounts/internal/common"
	"github.com/clippio/accounts/internal/server/auth"
	"github.com/clippio/accounts/internal/server/models"
)

const userLocalsKey = "user"

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		s.logger.Info(c.UserContext(), "http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start).String(),
		)
		return err
	}
}

// accessTokenFromRequest reads the access token from the cookie, falling
// back to the Authorization header for non-browser clients.
func accessTokenFromRequest(c *fiber.Ctx) string {
	if token := c.Cookies(common.AccessTokenCookieName); token != "" {
		return token
	}
	header := c.Get(common.AuthorizationHeaderName)
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// requireAuth authenticates the request and stores the resolved user in the
// request locals for the handler.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	token := accessTokenFromRequest(c)
	if token == "" {
		return s.respondError(c, fmt.Errorf("%w: missing access token", common.ErrorUnauthorized))
	}

	userID, err := auth.GetUserIDFromToken(token, s.accessTokenSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			s.logger.Info(c.UserContext(), "expired access token", "path", c.Path())
		} else {
			s.logger.Warn(c.UserContext(), "invalid access token", "path", c.Path())
		}
		return s.respondError(c, fmt.Errorf("%w: invalid access token", common.ErrorUnauthorized))
	}

	user, err := s.users.GetByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.respondError(c, fmt.Errorf("%w: unknown user", common.ErrorUnauthorized))
		}
		return s.respondError(c, err)
	}

	c.Locals(userLocalsKey, user)
	return c.Next()
}

// currentUser returns the user resolved by requireAuth.
func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userLocalsKey).(*models.User)
	return user
}
