// Package edit_api serves the edit feed, detail, upload and interaction endpoints.
package edit_api

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/cmd/web/handlers/common"
	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/edits"
)

// Queries is the read side of the edit endpoints. *db.Queries satisfies it.
type Queries interface {
	GetEditRow(ctx context.Context, arg *db.GetEditRowParams) (*db.EditRow, error)
	ListEdits(ctx context.Context, arg *db.ListEditsParams) ([]*db.EditRow, error)
	IncrementEditViews(ctx context.Context, id int64) (int64, error)
}

// Liker toggles likes. *db.DatabaseConnection satisfies it.
type Liker interface {
	ToggleLike(ctx context.Context, editID int64, userID pgtype.UUID) (bool, int64, error)
}

func loadRow(ctx context.Context, q Queries, viewer pgtype.UUID, id int64) (*db.EditRow, error) {
	row, err := q.GetEditRow(ctx, &db.GetEditRowParams{ViewerID: viewer, ID: id})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound("edit not found")
		}
		slog.Error("failed to load edit", "edit_id", id, "error", err)
		return nil, common.ErrInternal("internal error")
	}
	return row, nil
}

// readVideo pulls the "video" file or "video_url" field from a multipart or
// urlencoded form. The returned close func is never nil.
func readVideo(c echo.Context) (edits.Video, func(), error) {
	noop := func() {}
	v := edits.Video{URL: strings.TrimSpace(c.FormValue("video_url"))}

	fh, err := c.FormFile("video")
	switch {
	case err == nil:
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return v, noop, nil
	default:
		return v, noop, uploadError(err)
	}

	f, name, err := common.OpenUpload(fh)
	if err != nil {
		return v, noop, uploadError(err)
	}
	v.File = f
	v.FileName = name
	return v, func() { f.Close() }, nil
}

func uploadError(err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload is too large")
	}
	return common.ErrBadRequest("invalid upload")
}
