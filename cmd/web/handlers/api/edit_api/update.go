package edit_api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/cmd/web/handlers/common"
	"thirdcoast.systems/edits/cmd/web/viewtypes"
	"thirdcoast.systems/edits/internal/edits"
	"thirdcoast.systems/edits/internal/storage"
)

type updateRequest struct {
	Title       string  `json:"title" form:"title"`
	Description string  `json:"description" form:"description"`
	Category    string  `json:"category" form:"category"`
	Tags        *string `json:"tags" form:"tags"`
}

// HandleUpdate changes metadata only; the thumbnail is left alone.
func HandleUpdate(sm *auth.SessionManager, svc *edits.Service, q Queries, media storage.Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireInt64Param(c, "id")
		if err != nil {
			return err
		}
		actor, err := common.RequireActor(c, sm)
		if err != nil {
			return err
		}
		var req updateRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid request body")
		}

		if _, err := svc.Update(c.Request().Context(), actor, id, edits.UpdateInput{
			Title:        req.Title,
			Description:  req.Description,
			CategorySlug: req.Category,
			Tags:         req.Tags,
		}); err != nil {
			return common.EditError(err)
		}

		row, err := loadRow(c.Request().Context(), q, actor.ID, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, viewtypes.NewEdit(row, media))
	}
}

// HandleReplaceVideo swaps the video. The old thumbnail is dropped and a new
// one derived in the background.
func HandleReplaceVideo(sm *auth.SessionManager, svc *edits.Service, q Queries, media storage.Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireInt64Param(c, "id")
		if err != nil {
			return err
		}
		actor, err := common.RequireActor(c, sm)
		if err != nil {
			return err
		}
		video, closeVideo, err := readVideo(c)
		if err != nil {
			return err
		}
		defer closeVideo()

		if _, err := svc.ReplaceVideo(c.Request().Context(), actor, id, video); err != nil {
			return common.EditError(err)
		}

		row, err := loadRow(c.Request().Context(), q, actor.ID, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, viewtypes.NewEdit(row, media))
	}
}

func HandleDelete(sm *auth.SessionManager, svc *edits.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireInt64Param(c, "id")
		if err != nil {
			return err
		}
		actor, err := common.RequireActor(c, sm)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.Request().Context(), actor, id); err != nil {
			return common.EditError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// HandleRegenerateThumbnail queues a forced derivation and answers 202.
func HandleRegenerateThumbnail(sm *auth.SessionManager, svc *edits.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireInt64Param(c, "id")
		if err != nil {
			return err
		}
		actor, err := common.RequireActor(c, sm)
		if err != nil {
			return err
		}
		if err := svc.RegenerateThumbnail(c.Request().Context(), actor, id); err != nil {
			return common.EditError(err)
		}
		return c.JSON(http.StatusAccepted, map[string]any{"edit_id": id, "status": "queued"})
	}
}
