package http

import (
	"errors"
	"log/slog"
	"net/http"

	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/usecase/auth"

	"github.com/labstack/echo/v4"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, decision.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, decision.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, decision.ErrInvalidState),
		errors.Is(err, decision.ErrNoScore),
		errors.Is(err, decision.ErrStaleState),
		errors.Is(err, decision.ErrDuplicateActive):
		return http.StatusConflict
	case errors.Is(err, decision.ErrAdapterFailure):
		return http.StatusBadGateway
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrUsernameTaken):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": ...}. Unexpected errors are logged
// and hidden from the client.
func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
		msg = "internal server error"
	}
	return c.JSON(status, ErrorResponse{Error: msg})
}

func bindError(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
}

func validationError(c echo.Context, err error) error {
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "validation failed",
		Details: ToFieldErrors(err),
	})
}
