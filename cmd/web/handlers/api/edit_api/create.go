package edit_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/cmd/web/handlers/common"
	"thirdcoast.systems/edits/cmd/web/viewtypes"
	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/edits"
	"thirdcoast.systems/edits/internal/storage"
)

// HandleCreate accepts a multipart form with title, description, category,
// tags and either a "video" file or a "video_url". It answers before any
// thumbnail exists; the response points at the placeholder until one is derived.
func HandleCreate(sm *auth.SessionManager, svc *edits.Service, q Queries, media storage.Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := common.RequireActor(c, sm)
		if err != nil {
			return err
		}

		video, closeVideo, err := readVideo(c)
		if err != nil {
			return err
		}
		defer closeVideo()

		edit, err := svc.Create(c.Request().Context(), actor, edits.CreateInput{
			Title:        c.FormValue("title"),
			Description:  c.FormValue("description"),
			CategorySlug: c.FormValue("category"),
			Tags:         c.FormValue("tags"),
			Video:        video,
		})
		if err != nil {
			return common.EditError(err)
		}

		row, err := q.GetEditRow(c.Request().Context(), &db.GetEditRowParams{ViewerID: actor.ID, ID: edit.ID})
		if err != nil {
			slog.Warn("created edit could not be reloaded", "edit_id", edit.ID, "error", err)
			row = &db.EditRow{Edit: *edit, Tags: []string{}}
		}
		return c.JSON(http.StatusCreated, viewtypes.NewEdit(row, media))
	}
}
