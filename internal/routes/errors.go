package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/edupath/onboarding/internal/apperr"
	"github.com/edupath/onboarding/internal/coursefilter"
	"github.com/edupath/onboarding/internal/middleware"
)

const msgInternal = "Internal server error"

// writeError renders err using the status mapping shared by every handler.
func writeError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(msgInternal, err)
	}

	switch appErr.Kind {
	case apperr.KindValidation:
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"success": false, "errors": appErr.Fields})
	case apperr.KindAuthentication, apperr.KindState:
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"success": false, "message": appErr.Message})
	case apperr.KindNotFound:
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"success": false, "message": appErr.Message})
	case apperr.KindConflict:
		return c.Status(http.StatusConflict).JSON(fiber.Map{"success": false, "message": appErr.Message})
	case apperr.KindTransport, apperr.KindDependency:
		status := http.StatusBadGateway
		if errors.Is(err, coursefilter.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{"success": false, "message": appErr.Message, "retry": true})
	default:
		if logger != nil {
			logger.ErrorContext(c.UserContext(), "request failed",
				slog.String("path", c.Path()),
				slog.String("request_id", requestID(c)),
				slog.Any("error", err),
			)
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": msgInternal})
	}
}

func badBody(c *fiber.Ctx) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"errors":  map[string]string{"body": "request body must be valid JSON"},
	})
}

func requestID(c *fiber.Ctx) string {
	return middleware.RequestIDFrom(c)
}
