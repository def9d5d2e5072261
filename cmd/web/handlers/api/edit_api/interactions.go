package edit_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/cmd/web/handlers/common"
	"thirdcoast.systems/edits/internal/db"
)

// HandleView counts one view. Clients call it once playback starts.
func HandleView(q Queries) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireInt64Param(c, "id")
		if err != nil {
			return err
		}
		views, err := q.IncrementEditViews(c.Request().Context(), id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.ErrNotFound("edit not found")
			}
			slog.Error("failed to count view", "edit_id", id, "error", err)
			return common.ErrInternal("internal error")
		}
		return c.JSON(http.StatusOK, map[string]int64{"views": views})
	}
}

// HandleLike toggles the viewer's like.
func HandleLike(sm *auth.SessionManager, likes Liker) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireInt64Param(c, "id")
		if err != nil {
			return err
		}
		userID, _, err := common.RequireSessionUser(c, sm)
		if err != nil {
			return err
		}
		liked, count, err := likes.ToggleLike(c.Request().Context(), id, userID)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return common.ErrNotFound("edit not found")
			}
			slog.Error("failed to toggle like", "edit_id", id, "error", err)
			return common.ErrInternal("internal error")
		}
		return c.JSON(http.StatusOK, map[string]any{"liked": liked, "likes": count})
	}
}
