package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	webauth "thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/cmd/web/handlers/common"
	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/pkg/utils/passwords"
)

type registerRequest struct {
	Username        string `json:"username" form:"username" validate:"required,min=3,max=32,alphanum"`
	Email           string `json:"email" form:"email" validate:"required,email,max=254"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

func HandleRegister(sm *webauth.SessionManager, users Registrar) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid request body")
		}
		req.Username = strings.TrimSpace(req.Username)
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))

		if err := validate.Struct(req); err != nil {
			return common.ErrBadRequest("a user name of 3 to 32 letters or digits and a valid email are required")
		}
		in := passwords.Input{Password: req.Password, Confirm: req.ConfirmPassword}
		if err := in.Validate(); err != nil {
			return common.ErrBadRequest(err.Error())
		}

		user, err := users.NewUser(c.Request().Context(), db.NewUserParams{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				return common.ErrConflict("user name or email is already registered")
			}
			slog.Error("failed to create user", "error", err)
			return common.ErrInternal("could not create account")
		}
		slog.Info("user registered", "user_id", user.ID.String(), "role", user.Role)

		su := sessionUserFor(user)
		if err := sm.SaveSession(c.Response().Writer, c.Request(), su); err != nil {
			slog.Error("failed to save session", "error", err)
			return common.ErrInternal("account created but sign in failed")
		}
		return c.JSON(http.StatusCreated, newUserResponse(su))
	}
}
