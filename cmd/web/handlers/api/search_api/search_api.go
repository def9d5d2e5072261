// Package search_api serves search, categories and popular tags.
package search_api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/cmd/web/handlers/common"
	"thirdcoast.systems/edits/cmd/web/viewtypes"
	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/storage"
	"thirdcoast.systems/edits/pkg/utils/tags"
)

const (
	maxQueryLength  = 100
	popularTagLimit = 10
)

// Queries is satisfied by *db.Queries.
type Queries interface {
	SearchEdits(ctx context.Context, arg *db.SearchEditsParams) ([]*db.EditRow, error)
	ListPopularTags(ctx context.Context, limit int32) ([]*db.PopularTag, error)
	ListCategories(ctx context.Context) ([]*db.Category, error)
}

// HandleSearch matches ?q= against titles and tag names. A leading '#' is
// treated as a tag search and normalised the way tags are stored.
func HandleSearch(sm *auth.SessionManager, q Queries, media storage.Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, offset, err := common.Pagination(c)
		if err != nil {
			return err
		}
		query := strings.TrimSpace(c.QueryParam("q"))
		if strings.HasPrefix(query, "#") {
			query = tags.Normalize(query)
		}
		if query == "" {
			return c.JSON(http.StatusOK, viewtypes.Page[viewtypes.Edit]{Items: []viewtypes.Edit{}, Limit: limit, Offset: offset})
		}
		if utf8.RuneCountInString(query) > maxQueryLength {
			return common.ErrBadRequest("search query is too long")
		}

		rows, err := q.SearchEdits(c.Request().Context(), &db.SearchEditsParams{
			ViewerID: common.ViewerID(c, sm),
			Query:    query,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			slog.Error("search failed", "query", query, "error", err)
			return common.ErrInternal("internal error")
		}
		return c.JSON(http.StatusOK, viewtypes.Page[viewtypes.Edit]{
			Items:  viewtypes.NewEdits(rows, media),
			Limit:  limit,
			Offset: offset,
		})
	}
}

func HandlePopularTags(q Queries) echo.HandlerFunc {
	return func(c echo.Context) error {
		items, err := q.ListPopularTags(c.Request().Context(), popularTagLimit)
		if err != nil {
			slog.Error("failed to list popular tags", "error", err)
			return common.ErrInternal("internal error")
		}
		return c.JSON(http.StatusOK, items)
	}
}

func HandleCategories(q Queries) echo.HandlerFunc {
	return func(c echo.Context) error {
		items, err := q.ListCategories(c.Request().Context())
		if err != nil {
			slog.Error("failed to list categories", "error", err)
			return common.ErrInternal("internal error")
		}
		out := make([]viewtypes.Category, 0, len(items))
		for _, cat := range items {
			out = append(out, viewtypes.Category{ID: cat.ID, Name: cat.Name, Slug: cat.Slug})
		}
		return c.JSON(http.StatusOK, out)
	}
}
