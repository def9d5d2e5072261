package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const editColumns = `id, title, description, video_ref, thumbnail_ref, author_id, category_id, views_count, created_at, updated_at`

func scanEdit(row interface{ Scan(...any) error }) (*Edit, error) {
	var i Edit
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Description,
		&i.VideoRef,
		&i.ThumbnailRef,
		&i.AuthorID,
		&i.CategoryID,
		&i.ViewsCount,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// EditRow is an edit joined with what list and detail views render.
type EditRow struct {
	Edit
	AuthorName   string   `json:"author_name"`
	CategoryName *string  `json:"category_name"`
	CategorySlug *string  `json:"category_slug"`
	LikeCount    int64    `json:"like_count"`
	Liked        bool     `json:"liked"`
	Tags         []string `json:"tags"`
}

// editRowSelect expects the viewer id as $1.
const editRowSelect = `SELECT
    e.id, e.title, e.description, e.video_ref, e.thumbnail_ref, e.author_id, e.category_id,
    e.views_count, e.created_at, e.updated_at,
    u.user_name,
    c.name, c.slug,
    (SELECT count(*) FROM edit_likes l WHERE l.edit_id = e.id) AS like_count,
    EXISTS (SELECT 1 FROM edit_likes l WHERE l.edit_id = e.id AND l.user_id = $1::uuid) AS liked,
    COALESCE((SELECT array_agg(t.name ORDER BY t.name)
              FROM edit_tags et JOIN tags t ON t.id = et.tag_id
              WHERE et.edit_id = e.id), '{}')::text[] AS tags
FROM edits e
JOIN users u ON u.id = e.author_id
LEFT JOIN categories c ON c.id = e.category_id
`

func scanEditRow(row interface{ Scan(...any) error }) (*EditRow, error) {
	var i EditRow
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Description,
		&i.VideoRef,
		&i.ThumbnailRef,
		&i.AuthorID,
		&i.CategoryID,
		&i.ViewsCount,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.AuthorName,
		&i.CategoryName,
		&i.CategorySlug,
		&i.LikeCount,
		&i.Liked,
		&i.Tags,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func collectEditRows(rows pgx.Rows) ([]*EditRow, error) {
	defer rows.Close()
	items := []*EditRow{}
	for rows.Next() {
		i, err := scanEditRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertEdit = `INSERT INTO edits (title, description, video_ref, author_id, category_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + editColumns

type insertEditParams struct {
	Title       string
	Description string
	VideoRef    string
	AuthorID    pgtype.UUID
	CategoryID  *int64
}

func (q *Queries) insertEdit(ctx context.Context, arg *insertEditParams) (*Edit, error) {
	row := q.db.QueryRow(ctx, insertEdit,
		arg.Title,
		arg.Description,
		arg.VideoRef,
		arg.AuthorID,
		arg.CategoryID,
	)
	return scanEdit(row)
}

const getEdit = `SELECT ` + editColumns + ` FROM edits WHERE id = $1`

func (q *Queries) GetEdit(ctx context.Context, id int64) (*Edit, error) {
	return scanEdit(q.db.QueryRow(ctx, getEdit, id))
}

const getEditForUpdate = getEdit + ` FOR UPDATE`

func (q *Queries) getEditForUpdate(ctx context.Context, id int64) (*Edit, error) {
	return scanEdit(q.db.QueryRow(ctx, getEditForUpdate, id))
}

const getEditRow = editRowSelect + `WHERE e.id = $2`

type GetEditRowParams struct {
	ViewerID pgtype.UUID
	ID       int64
}

func (q *Queries) GetEditRow(ctx context.Context, arg *GetEditRowParams) (*EditRow, error) {
	return scanEditRow(q.db.QueryRow(ctx, getEditRow, arg.ViewerID, arg.ID))
}

const listEdits = editRowSelect + `WHERE ($2::boolean = false
       OR e.author_id IN (SELECT followee_id FROM follows WHERE follower_id = $1::uuid))
ORDER BY e.created_at DESC, e.id DESC
LIMIT $3 OFFSET $4`

type ListEditsParams struct {
	ViewerID      pgtype.UUID
	FollowingOnly bool
	Limit         int32
	Offset        int32
}

// ListEdits returns the feed, newest first.
func (q *Queries) ListEdits(ctx context.Context, arg *ListEditsParams) ([]*EditRow, error) {
	rows, err := q.db.Query(ctx, listEdits, arg.ViewerID, arg.FollowingOnly, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectEditRows(rows)
}

const listEditsByAuthor = editRowSelect + `WHERE e.author_id = $2
ORDER BY e.created_at DESC, e.id DESC
LIMIT $3 OFFSET $4`

type ListEditsByAuthorParams struct {
	ViewerID pgtype.UUID
	AuthorID pgtype.UUID
	Limit    int32
	Offset   int32
}

func (q *Queries) ListEditsByAuthor(ctx context.Context, arg *ListEditsByAuthorParams) ([]*EditRow, error) {
	rows, err := q.db.Query(ctx, listEditsByAuthor, arg.ViewerID, arg.AuthorID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectEditRows(rows)
}

const listLikedEdits = editRowSelect + `JOIN edit_likes lk ON lk.edit_id = e.id AND lk.user_id = $2
ORDER BY lk.created_at DESC, e.id DESC
LIMIT $3 OFFSET $4`

type ListLikedEditsParams struct {
	ViewerID pgtype.UUID
	UserID   pgtype.UUID
	Limit    int32
	Offset   int32
}

func (q *Queries) ListLikedEdits(ctx context.Context, arg *ListLikedEditsParams) ([]*EditRow, error) {
	rows, err := q.db.Query(ctx, listLikedEdits, arg.ViewerID, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectEditRows(rows)
}

const searchEdits = editRowSelect + `WHERE e.title ILIKE '%' || $2 || '%' ESCAPE '\'
   OR EXISTS (SELECT 1 FROM edit_tags et JOIN tags t ON t.id = et.tag_id
              WHERE et.edit_id = e.id AND t.name ILIKE '%' || $2 || '%' ESCAPE '\')
ORDER BY e.created_at DESC, e.id DESC
LIMIT $3 OFFSET $4`

type SearchEditsParams struct {
	ViewerID pgtype.UUID
	Query    string
	Limit    int32
	Offset   int32
}

// SearchEdits matches the title or any tag name, case-insensitively.
// Each edit appears at most once.
func (q *Queries) SearchEdits(ctx context.Context, arg *SearchEditsParams) ([]*EditRow, error) {
	rows, err := q.db.Query(ctx, searchEdits, arg.ViewerID, EscapeLike(arg.Query), arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectEditRows(rows)
}

// EscapeLike escapes LIKE wildcards so s matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

const updateEditDetails = `UPDATE edits
SET title = $2,
    description = $3,
    category_id = $4,
    updated_at = now()
WHERE id = $1
RETURNING ` + editColumns

type UpdateEditDetailsParams struct {
	ID          int64
	Title       string
	Description string
	CategoryID  *int64
}

// UpdateEditDetails never touches video_ref or thumbnail_ref.
func (q *Queries) UpdateEditDetails(ctx context.Context, arg *UpdateEditDetailsParams) (*Edit, error) {
	row := q.db.QueryRow(ctx, updateEditDetails, arg.ID, arg.Title, arg.Description, arg.CategoryID)
	return scanEdit(row)
}

const replaceEditVideo = `UPDATE edits
SET video_ref = $2,
    thumbnail_ref = NULL,
    updated_at = now()
WHERE id = $1
RETURNING ` + editColumns

type replaceEditVideoParams struct {
	ID       int64
	VideoRef string
}

func (q *Queries) replaceEditVideo(ctx context.Context, arg *replaceEditVideoParams) (*Edit, error) {
	return scanEdit(q.db.QueryRow(ctx, replaceEditVideo, arg.ID, arg.VideoRef))
}

const deleteEdit = `DELETE FROM edits WHERE id = $1`

func (q *Queries) DeleteEdit(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteEdit, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const incrementEditViews = `UPDATE edits SET views_count = views_count + 1 WHERE id = $1 RETURNING views_count`

func (q *Queries) IncrementEditViews(ctx context.Context, id int64) (int64, error) {
	var views int64
	err := q.db.QueryRow(ctx, incrementEditViews, id).Scan(&views)
	return views, err
}

// EditThumbnailSource is the slice of an edit that thumbnail derivation reads.
type EditThumbnailSource struct {
	ID           int64
	VideoRef     string
	ThumbnailRef *string
}

const getEditThumbnailSource = `SELECT id, video_ref, thumbnail_ref FROM edits WHERE id = $1`

func (q *Queries) GetEditThumbnailSource(ctx context.Context, id int64) (*EditThumbnailSource, error) {
	var i EditThumbnailSource
	err := q.db.QueryRow(ctx, getEditThumbnailSource, id).Scan(&i.ID, &i.VideoRef, &i.ThumbnailRef)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

const updateEditThumbnail = `UPDATE edits SET thumbnail_ref = $2 WHERE id = $1 AND video_ref = $3`

type UpdateEditThumbnailParams struct {
	ID           int64
	ThumbnailRef *string
	// VideoRef is the video the frame was taken from.
	VideoRef string
}

// UpdateEditThumbnail writes thumbnail_ref and nothing else, not even updated_at.
// No row matches when the edit was deleted or its video replaced meanwhile.
func (q *Queries) UpdateEditThumbnail(ctx context.Context, arg *UpdateEditThumbnailParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateEditThumbnail, arg.ID, arg.ThumbnailRef, arg.VideoRef)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listEditsMissingThumbnail = `SELECT id, video_ref, thumbnail_ref FROM edits
WHERE thumbnail_ref IS NULL
  AND NOT EXISTS (SELECT 1 FROM thumbnail_jobs j
                  WHERE j.edit_id = edits.id AND j.status IN ('queued', 'processing', 'failed'))
  AND NOT EXISTS (SELECT 1 FROM thumbnail_failures f
                  WHERE f.edit_id = edits.id AND f.video_ref = edits.video_ref)
ORDER BY id
LIMIT $1`

// ListEditsMissingThumbnail skips edits that already have a pending or failed
// job, and edits whose current video already failed derivation in any mode.
func (q *Queries) ListEditsMissingThumbnail(ctx context.Context, limit int32) ([]*EditThumbnailSource, error) {
	rows, err := q.db.Query(ctx, listEditsMissingThumbnail, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*EditThumbnailSource{}
	for rows.Next() {
		var i EditThumbnailSource
		if err := rows.Scan(&i.ID, &i.VideoRef, &i.ThumbnailRef); err != nil {
			return nil, err
		}
		items = append(items, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const recordThumbnailFailure = `INSERT INTO thumbnail_failures (edit_id, video_ref, reason)
VALUES ($1, $2, $3)
ON CONFLICT (edit_id) DO UPDATE
SET video_ref = EXCLUDED.video_ref, reason = EXCLUDED.reason, failed_at = now()`

type RecordThumbnailFailureParams struct {
	EditID   int64
	VideoRef string
	Reason   string
}

// RecordThumbnailFailure remembers that derivation failed for the edit's video.
// It lives outside the edits table so derivation still writes only thumbnail_ref there.
func (q *Queries) RecordThumbnailFailure(ctx context.Context, arg *RecordThumbnailFailureParams) error {
	_, err := q.db.Exec(ctx, recordThumbnailFailure, arg.EditID, arg.VideoRef, arg.Reason)
	return err
}
