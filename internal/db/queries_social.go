package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const listCategories = `SELECT id, name, slug FROM categories ORDER BY name`

func (q *Queries) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Category{}
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name, &i.Slug); err != nil {
			return nil, err
		}
		items = append(items, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCategoryBySlug = `SELECT id, name, slug FROM categories WHERE slug = $1`

func (q *Queries) GetCategoryBySlug(ctx context.Context, slug string) (*Category, error) {
	var i Category
	if err := q.db.QueryRow(ctx, getCategoryBySlug, slug).Scan(&i.ID, &i.Name, &i.Slug); err != nil {
		return nil, err
	}
	return &i, nil
}

const upsertTag = `INSERT INTO tags (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name`

// UpsertTag returns the tag named name, creating it when missing.
func (q *Queries) UpsertTag(ctx context.Context, name string) (*Tag, error) {
	var i Tag
	if err := q.db.QueryRow(ctx, upsertTag, name).Scan(&i.ID, &i.Name); err != nil {
		return nil, err
	}
	return &i, nil
}

const linkEditTag = `INSERT INTO edit_tags (edit_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

type LinkEditTagParams struct {
	EditID int64
	TagID  int64
}

func (q *Queries) LinkEditTag(ctx context.Context, arg *LinkEditTagParams) error {
	_, err := q.db.Exec(ctx, linkEditTag, arg.EditID, arg.TagID)
	return err
}

const clearEditTags = `DELETE FROM edit_tags WHERE edit_id = $1`

func (q *Queries) ClearEditTags(ctx context.Context, editID int64) error {
	_, err := q.db.Exec(ctx, clearEditTags, editID)
	return err
}

const listPopularTags = `SELECT t.name, count(et.edit_id) AS edit_count
FROM tags t
JOIN edit_tags et ON et.tag_id = t.id
GROUP BY t.id, t.name
ORDER BY edit_count DESC, t.name
LIMIT $1`

type PopularTag struct {
	Name      string `json:"name"`
	EditCount int64  `json:"edit_count"`
}

func (q *Queries) ListPopularTags(ctx context.Context, limit int32) ([]*PopularTag, error) {
	rows, err := q.db.Query(ctx, listPopularTags, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*PopularTag{}
	for rows.Next() {
		var i PopularTag
		if err := rows.Scan(&i.Name, &i.EditCount); err != nil {
			return nil, err
		}
		items = append(items, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const likeEdit = `INSERT INTO edit_likes (edit_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

type EditLikeParams struct {
	EditID int64
	UserID pgtype.UUID
}

func (q *Queries) LikeEdit(ctx context.Context, arg *EditLikeParams) error {
	_, err := q.db.Exec(ctx, likeEdit, arg.EditID, arg.UserID)
	return err
}

const unlikeEdit = `DELETE FROM edit_likes WHERE edit_id = $1 AND user_id = $2`

// UnlikeEdit returns the number of likes removed (0 or 1).
func (q *Queries) UnlikeEdit(ctx context.Context, arg *EditLikeParams) (int64, error) {
	tag, err := q.db.Exec(ctx, unlikeEdit, arg.EditID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const countEditLikes = `SELECT count(*) FROM edit_likes WHERE edit_id = $1`

func (q *Queries) CountEditLikes(ctx context.Context, editID int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countEditLikes, editID).Scan(&n)
	return n, err
}

const followUser = `INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

type FollowParams struct {
	FollowerID pgtype.UUID
	FolloweeID pgtype.UUID
}

func (q *Queries) FollowUser(ctx context.Context, arg *FollowParams) error {
	_, err := q.db.Exec(ctx, followUser, arg.FollowerID, arg.FolloweeID)
	return err
}

const unfollowUser = `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`

func (q *Queries) UnfollowUser(ctx context.Context, arg *FollowParams) (int64, error) {
	tag, err := q.db.Exec(ctx, unfollowUser, arg.FollowerID, arg.FolloweeID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
