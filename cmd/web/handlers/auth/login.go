package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	webauth "thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/cmd/web/handlers/common"
	"thirdcoast.systems/edits/pkg/utils/passwords"
)

type loginRequest struct {
	// Login is a user name or an email.
	Login    string `json:"login" form:"login"`
	Password string `json:"password" form:"password"`
}

func HandleLogin(sm *webauth.SessionManager, users UserLookup) echo.HandlerFunc {
	invalid := echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	return func(c echo.Context) error {
		var req loginRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid request body")
		}
		req.Login = strings.TrimSpace(req.Login)
		if req.Login == "" || req.Password == "" {
			return common.ErrBadRequest("username and password are required")
		}

		user, err := users.GetUserByLogin(c.Request().Context(), req.Login)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return invalid
			}
			slog.Error("failed to load user", "error", err)
			return common.ErrInternal("internal error")
		}

		matches, err := passwords.Password(user.Password).Matches(req.Password)
		if err != nil || !matches {
			return invalid
		}

		su := sessionUserFor(user)
		if err := sm.SaveSession(c.Response().Writer, c.Request(), su); err != nil {
			slog.Error("failed to save session", "error", err)
			return common.ErrInternal("an error occurred, please try again")
		}
		return c.JSON(http.StatusOK, newUserResponse(su))
	}
}
