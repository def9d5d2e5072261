package common

import (
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/internal/edits"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// RequireInt64Param extracts a positive integer route parameter or returns a 400 error.
func RequireInt64Param(c echo.Context, param string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
	}
	return id, nil
}

// RequireSessionUser extracts the user UUID and the session from the request.
// Returns 401 if not authenticated, 500 if the session user ID is corrupt.
func RequireSessionUser(c echo.Context, sm *auth.SessionManager) (pgtype.UUID, auth.SessionUser, error) {
	user, err := sm.GetSession(c.Request())
	if err != nil {
		return pgtype.UUID{}, auth.SessionUser{}, ErrUnauthorized()
	}
	var u pgtype.UUID
	if err := u.Scan(user.ID); err != nil {
		return pgtype.UUID{}, auth.SessionUser{}, echo.NewHTTPError(http.StatusInternalServerError, "invalid session")
	}
	return u, user, nil
}

// RequireActor is RequireSessionUser shaped for the edits service.
func RequireActor(c echo.Context, sm *auth.SessionManager) (edits.Actor, error) {
	id, user, err := RequireSessionUser(c, sm)
	if err != nil {
		return edits.Actor{}, err
	}
	return edits.Actor{ID: id, Admin: user.IsAdmin()}, nil
}

// ViewerID returns the signed-in user's id, or an invalid UUID for anonymous requests.
func ViewerID(c echo.Context, sm *auth.SessionManager) pgtype.UUID {
	id, _, err := RequireSessionUser(c, sm)
	if err != nil {
		return pgtype.UUID{}
	}
	return id
}

// Pagination reads ?limit= and ?offset=. Missing values take defaults and
// limit is capped at MaxPageSize.
func Pagination(c echo.Context) (limit, offset int32, err error) {
	limit = DefaultPageSize
	if raw := c.QueryParam("limit"); raw != "" {
		n, perr := strconv.ParseInt(raw, 10, 32)
		if perr != nil || n <= 0 {
			return 0, 0, ErrBadRequest("invalid limit")
		}
		limit = int32(min(n, MaxPageSize))
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, perr := strconv.ParseInt(raw, 10, 32)
		if perr != nil || n < 0 {
			return 0, 0, ErrBadRequest("invalid offset")
		}
		offset = int32(n)
	}
	return limit, offset, nil
}
