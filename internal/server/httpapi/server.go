// Package httpapi exposes the account service over HTTP: routing,
// request authentication, multipart handling, token cookies, and the
// response envelope.
package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/clippio/accounts/internal/logging"
	"github.com/clippio/accounts/internal/server/config"
	"github.com/clippio/accounts/internal/server/models"
	"github.com/clippio/accounts/internal/server/services"
)

// UserService is the business-logic surface the HTTP layer depends on.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, identifier, password string) (*models.User, *services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	GetByID(ctx context.Context, userID string) (*models.User, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	UpdateProfile(ctx context.Context, userID, email, fullName string) (*models.User, error)
	UpdateAvatar(ctx context.Context, userID, localFilePath string) (*models.User, error)
	UpdateCoverImage(ctx context.Context, userID, localFilePath string) (*models.User, error)
}

// Server is the HTTP front of the accounts service.
type Server struct {
	app               *fiber.App
	users             UserService
	logger            logging.Logger
	addr              string
	accessTokenSecret []byte
	accessTokenTTL    time.Duration
	refreshTokenTTL   time.Duration
	secureCookies     bool
}

// NewServer builds the fiber application and registers all routes.
func NewServer(cfg *config.Config, logger logging.Logger, users UserService) *Server {
	s := &Server{
		users:             users,
		logger:            logger,
		addr:              cfg.EndpointAddrHTTP,
		accessTokenSecret: []byte(cfg.AccessTokenSecret),
		accessTokenTTL:    cfg.AccessTokenValidityDuration,
		refreshTokenTTL:   cfg.RefreshTokenValidityDuration,
		secureCookies:     cfg.SecureCookies,
	}

	app := fiber.New(fiber.Config{
		AppName:      "accounts",
		ErrorHandler: s.errorHandler,
	})
	app.Use(s.requestLogger())

	app.Post("/register", s.handleRegister)
	app.Post("/login", s.handleLogin)
	app.Get("/refresh-token", s.handleRefresh)

	authed := app.Group("", s.requireAuth)
	authed.Post("/logout", s.handleLogout)
	authed.Get("/me", s.handleMe)
	authed.Post("/change-password", s.handleChangePassword)
	authed.Put("/update", s.handleUpdateProfile)
	authed.Put("/update-avatar", s.handleUpdateAvatar)
	authed.Put("/update-cover-image", s.handleUpdateCoverImage)

	s.app = app
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.addr)
	}()

	s.logger.Info(ctx, "http server listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	}
}
