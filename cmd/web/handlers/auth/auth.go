// Package auth holds the register, login and logout endpoints.
package auth

import (
	"context"

	"github.com/go-playground/validator/v10"

	webauth "thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/internal/db"
)

// Registrar creates accounts. *db.DatabaseConnection satisfies it.
type Registrar interface {
	NewUser(ctx context.Context, params db.NewUserParams) (*db.User, error)
}

// UserLookup finds an account by user name or email. *db.Queries satisfies it.
type UserLookup interface {
	GetUserByLogin(ctx context.Context, login string) (*db.User, error)
}

var validate = validator.New()

type userResponse struct {
	ID       string `json:"id"`
	UserName string `json:"user_name"`
	Admin    bool   `json:"admin"`
}

func newUserResponse(u webauth.SessionUser) userResponse {
	return userResponse{ID: u.ID, UserName: u.Username, Admin: u.IsAdmin()}
}

func sessionUserFor(user *db.User) webauth.SessionUser {
	return webauth.SessionUser{
		ID:          user.ID.String(),
		Username:    user.UserName,
		AccessLevel: webauth.AccessLevelForRole(string(user.Role)),
	}
}
