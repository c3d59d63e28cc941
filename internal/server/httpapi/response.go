package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/clippio/accounts/internal/common"
)

// envelope is the uniform response body. Data is omitted on errors.
type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func respond(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < 400,
	})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrInvalidToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, common.ErrorNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, common.ErrorAlreadyExists):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError maps an error onto the envelope. Anything that resolves to a
// 500 keeps its detail in the log only.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	status := statusFromError(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		s.logger.Error(c.UserContext(), "request failed", "path", c.Path(), "error", err)
		message = "internal server error"
	}
	return respond(c, status, message, nil)
}

// errorHandler covers errors that escape the handlers (body limits, bad
// routes, panics recovered by fiber).
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return respond(c, fe.Code, fe.Message, nil)
	}
	return s.respondError(c, err)
}
