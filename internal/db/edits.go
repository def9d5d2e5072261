package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

type CreateEditParams struct {
	Title       string
	Description string
	VideoRef    string
	AuthorID    pgtype.UUID
	CategoryID  *int64
	// Tags must already be normalised.
	Tags []string
}

// CreateEdit inserts the edit and its tag links in one transaction.
// The thumbnail is never part of this transaction.
func (db *DatabaseConnection) CreateEdit(ctx context.Context, params CreateEditParams) (*Edit, error) {
	q, tx, err := db.NewWithTX(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	edit, err := q.insertEdit(ctx, &insertEditParams{
		Title:       params.Title,
		Description: params.Description,
		VideoRef:    params.VideoRef,
		AuthorID:    params.AuthorID,
		CategoryID:  params.CategoryID,
	})
	if err != nil {
		return nil, fmt.Errorf("insert edit: %w", err)
	}

	if err := linkTags(ctx, q, edit.ID, params.Tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit edit: %w", err)
	}
	return edit, nil
}

type UpdateEditParams struct {
	ID          int64
	Title       string
	Description string
	CategoryID  *int64
	// Tags replaces the tag set when non-nil.
	Tags *[]string
}

// UpdateEdit changes descriptive fields only.
func (db *DatabaseConnection) UpdateEdit(ctx context.Context, params UpdateEditParams) (*Edit, error) {
	q, tx, err := db.NewWithTX(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	edit, err := q.UpdateEditDetails(ctx, &UpdateEditDetailsParams{
		ID:          params.ID,
		Title:       params.Title,
		Description: params.Description,
		CategoryID:  params.CategoryID,
	})
	if err != nil {
		return nil, fmt.Errorf("update edit: %w", err)
	}

	if params.Tags != nil {
		if err := q.ClearEditTags(ctx, edit.ID); err != nil {
			return nil, fmt.Errorf("clear tags: %w", err)
		}
		if err := linkTags(ctx, q, edit.ID, *params.Tags); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit edit: %w", err)
	}
	return edit, nil
}

// ReplaceEditVideo swaps the video and clears the thumbnail. It returns the updated
// edit together with the row as it was before, so callers can remove old blobs.
func (db *DatabaseConnection) ReplaceEditVideo(ctx context.Context, id int64, videoRef string) (updated *Edit, previous *Edit, err error) {
	q, tx, err := db.NewWithTX(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	previous, err = q.getEditForUpdate(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load edit: %w", err)
	}

	updated, err = q.replaceEditVideo(ctx, &replaceEditVideoParams{ID: id, VideoRef: videoRef})
	if err != nil {
		return nil, nil, fmt.Errorf("replace video: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit edit: %w", err)
	}
	return updated, previous, nil
}

// ToggleLike flips the like of user on edit and returns the new state with the like count.
func (db *DatabaseConnection) ToggleLike(ctx context.Context, editID int64, userID pgtype.UUID) (liked bool, count int64, err error) {
	q, tx, err := db.NewWithTX(ctx)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback(ctx)

	arg := &EditLikeParams{EditID: editID, UserID: userID}
	removed, err := q.UnlikeEdit(ctx, arg)
	if err != nil {
		return false, 0, fmt.Errorf("unlike: %w", err)
	}
	liked = removed == 0
	if liked {
		if err := q.LikeEdit(ctx, arg); err != nil {
			return false, 0, fmt.Errorf("like: %w", err)
		}
	}

	count, err = q.CountEditLikes(ctx, editID)
	if err != nil {
		return false, 0, fmt.Errorf("count likes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, 0, fmt.Errorf("commit like: %w", err)
	}
	return liked, count, nil
}

func linkTags(ctx context.Context, q *Queries, editID int64, tags []string) error {
	for _, name := range tags {
		tag, err := q.UpsertTag(ctx, name)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if err := q.LinkEditTag(ctx, &LinkEditTagParams{EditID: editID, TagID: tag.ID}); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}
