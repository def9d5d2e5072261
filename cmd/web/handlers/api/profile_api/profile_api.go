// Package profile_api serves public profiles, profile edits and follows.
package profile_api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/cmd/web/handlers/common"
	"thirdcoast.systems/edits/cmd/web/viewtypes"
	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/profiles"
	"thirdcoast.systems/edits/internal/storage"
)

// Queries is satisfied by *db.Queries.
type Queries interface {
	GetUserByUserName(ctx context.Context, userName string) (*db.User, error)
	GetProfile(ctx context.Context, userID pgtype.UUID) (*db.Profile, error)
	GetProfileStats(ctx context.Context, arg *db.GetProfileStatsParams) (*db.ProfileStats, error)
	ListEditsByAuthor(ctx context.Context, arg *db.ListEditsByAuthorParams) ([]*db.EditRow, error)
	ListLikedEdits(ctx context.Context, arg *db.ListLikedEditsParams) ([]*db.EditRow, error)
}

// Follower is satisfied by *db.DatabaseConnection.
type Follower interface {
	ToggleFollow(ctx context.Context, follower, followee pgtype.UUID) (bool, error)
}

func lookupUser(ctx context.Context, q Queries, name string) (*db.User, error) {
	user, err := q.GetUserByUserName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound("user not found")
		}
		slog.Error("failed to load user", "user_name", name, "error", err)
		return nil, common.ErrInternal("internal error")
	}
	return user, nil
}

// HandleProfile renders a profile with its stats, uploads and liked edits.
func HandleProfile(sm *auth.SessionManager, q Queries, media storage.Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		limit, offset, err := common.Pagination(c)
		if err != nil {
			return err
		}
		user, err := lookupUser(ctx, q, c.Param("username"))
		if err != nil {
			return err
		}
		viewer := common.ViewerID(c, sm)

		profile, err := q.GetProfile(ctx, user.ID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			slog.Error("failed to load profile", "user_id", user.ID.String(), "error", err)
			return common.ErrInternal("internal error")
		}
		stats, err := q.GetProfileStats(ctx, &db.GetProfileStatsParams{UserID: user.ID, ViewerID: viewer})
		if err != nil {
			slog.Error("failed to load profile stats", "user_id", user.ID.String(), "error", err)
			return common.ErrInternal("internal error")
		}
		uploads, err := q.ListEditsByAuthor(ctx, &db.ListEditsByAuthorParams{ViewerID: viewer, AuthorID: user.ID, Limit: limit, Offset: offset})
		if err != nil {
			slog.Error("failed to list profile edits", "user_id", user.ID.String(), "error", err)
			return common.ErrInternal("internal error")
		}
		liked, err := q.ListLikedEdits(ctx, &db.ListLikedEditsParams{ViewerID: viewer, UserID: user.ID, Limit: limit, Offset: offset})
		if err != nil {
			slog.Error("failed to list liked edits", "user_id", user.ID.String(), "error", err)
			return common.ErrInternal("internal error")
		}

		view := viewtypes.NewProfile(user, profile, stats, media)
		view.IsSelf = viewer.Valid && viewer == user.ID
		view.Edits = viewtypes.NewEdits(uploads, media)
		view.Liked = viewtypes.NewEdits(liked, media)
		return c.JSON(http.StatusOK, view)
	}
}

// HandleUpdateProfile takes a multipart form with "bio" and an optional "avatar" image.
func HandleUpdateProfile(sm *auth.SessionManager, svc *profiles.Service, media storage.Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _, err := common.RequireSessionUser(c, sm)
		if err != nil {
			return err
		}

		in := profiles.UpdateInput{Bio: c.FormValue("bio")}
		fh, err := c.FormFile("avatar")
		switch {
		case err == nil:
			f, _, err := common.OpenUpload(fh)
			if err != nil {
				return common.ErrBadRequest("invalid upload")
			}
			defer f.Close()
			in.Avatar = f
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		default:
			return common.ErrBadRequest("invalid upload")
		}

		profile, err := svc.Update(c.Request().Context(), userID, in)
		switch {
		case err == nil:
		case errors.Is(err, profiles.ErrInvalid):
			return common.ErrBadRequest(strings.TrimPrefix(err.Error(), profiles.ErrInvalid.Error()+": "))
		case errors.Is(err, profiles.ErrNotFound):
			return common.ErrNotFound("profile not found")
		default:
			slog.Error("failed to update profile", "user_id", userID.String(), "error", err)
			return common.ErrInternal("internal error")
		}

		resp := map[string]string{"bio": profile.Bio}
		if ref := common.DerefString(profile.AvatarRef); ref != "" {
			resp["avatar_url"] = media.URL(ref)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// HandleFollow toggles whether the viewer follows :username.
func HandleFollow(sm *auth.SessionManager, q Queries, follows Follower) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _, err := common.RequireSessionUser(c, sm)
		if err != nil {
			return err
		}
		target, err := lookupUser(c.Request().Context(), q, c.Param("username"))
		if err != nil {
			return err
		}
		if target.ID == userID {
			return common.ErrBadRequest("you cannot follow yourself")
		}

		following, err := follows.ToggleFollow(c.Request().Context(), userID, target.ID)
		if err != nil {
			switch {
			case db.IsCheckViolation(err):
				return common.ErrBadRequest("you cannot follow yourself")
			case db.IsForeignKeyViolation(err):
				return common.ErrNotFound("user not found")
			}
			slog.Error("failed to toggle follow", "user_id", userID.String(), "target", target.ID.String(), "error", err)
			return common.ErrInternal("internal error")
		}
		return c.JSON(http.StatusOK, map[string]bool{"following": following})
	}
}
