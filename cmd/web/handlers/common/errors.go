package common

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/internal/edits"
)

// ErrBadRequest returns a 400 Bad Request error.
func ErrBadRequest(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

// ErrNotFound returns a 404 Not Found error.
func ErrNotFound(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusNotFound, msg)
}

// ErrUnauthorized returns a 401 Unauthorized error.
func ErrUnauthorized() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
}

// ErrForbidden returns a 403 Forbidden error.
func ErrForbidden(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusForbidden, msg)
}

// ErrConflict returns a 409 Conflict error.
func ErrConflict(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusConflict, msg)
}

// ErrInternal returns a 500 Internal Server Error.
func ErrInternal(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusInternalServerError, msg)
}

// EditError maps errors from the edits service onto HTTP errors.
// Unexpected errors are logged and hidden behind a 500.
func EditError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, edits.ErrNotFound):
		return ErrNotFound("edit not found")
	case errors.Is(err, edits.ErrForbidden):
		return ErrForbidden("not allowed to change this edit")
	case errors.Is(err, edits.ErrInvalid):
		return ErrBadRequest(strings.TrimPrefix(err.Error(), edits.ErrInvalid.Error()+": "))
	default:
		slog.Error("edit operation failed", "error", err)
		return ErrInternal("internal error")
	}
}
