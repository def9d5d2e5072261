package edit_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/cmd/web/handlers/common"
	"thirdcoast.systems/edits/cmd/web/viewtypes"
	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/storage"
)

// HandleFeed lists edits newest first. ?following=true restricts the feed to
// authors the viewer follows and requires a session.
func HandleFeed(sm *auth.SessionManager, q Queries, media storage.Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, offset, err := common.Pagination(c)
		if err != nil {
			return err
		}
		following := common.ParseBool(c.QueryParam("following"))
		viewer := common.ViewerID(c, sm)
		if following && !viewer.Valid {
			return common.ErrUnauthorized()
		}

		rows, err := q.ListEdits(c.Request().Context(), &db.ListEditsParams{
			ViewerID:      viewer,
			FollowingOnly: following,
			Limit:         limit,
			Offset:        offset,
		})
		if err != nil {
			slog.Error("failed to list edits", "error", err)
			return common.ErrInternal("internal error")
		}

		return c.JSON(http.StatusOK, viewtypes.Page[viewtypes.Edit]{
			Items:  viewtypes.NewEdits(rows, media),
			Limit:  limit,
			Offset: offset,
		})
	}
}

func HandleDetail(sm *auth.SessionManager, q Queries, media storage.Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireInt64Param(c, "id")
		if err != nil {
			return err
		}
		row, err := loadRow(c.Request().Context(), q, common.ViewerID(c, sm), id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, viewtypes.NewEdit(row, media))
	}
}
