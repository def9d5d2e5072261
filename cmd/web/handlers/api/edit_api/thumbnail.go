package edit_api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/cmd/web/handlers/api/fileserver"
	"thirdcoast.systems/edits/cmd/web/handlers/common"
	"thirdcoast.systems/edits/internal/storage"
	"thirdcoast.systems/edits/internal/thumbnail"
)

// HandleThumbnail serves the stored thumbnail, or a generated gradient
// placeholder while there is none. The placeholder is not cached so clients
// pick up the real image once it is derived.
func HandleThumbnail(q Queries, media storage.Storage, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireInt64Param(c, "id")
		if err != nil {
			return err
		}
		row, err := loadRow(c.Request().Context(), q, pgtype.UUID{}, id)
		if err != nil {
			return err
		}

		if ref := common.DerefString(row.ThumbnailRef); ref != "" {
			err := fs.ServeRef(c, media, ref, "public, max-age=3600")
			if !errors.Is(err, echo.ErrNotFound) {
				return err
			}
		}

		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		return c.Blob(http.StatusOK, "image/svg+xml", thumbnail.PlaceholderSVG(row.ID, row.Title))
	}
}
