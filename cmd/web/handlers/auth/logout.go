package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	webauth "thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/cmd/web/handlers/common"
)

func HandleLogout(sm *webauth.SessionManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		sm.ClearSession(c.Response().Writer, c.Request())
		return c.NoContent(http.StatusNoContent)
	}
}

// HandleMe returns the signed-in user.
func HandleMe(sm *webauth.SessionManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, user, err := common.RequireSessionUser(c, sm)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, newUserResponse(user))
	}
}
