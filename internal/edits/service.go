// Package edits implements the edit lifecycle: upload, metadata changes,
// video replacement and deletion. Thumbnail derivation is always handed to a
// thumbnail.Dispatcher after the edit is committed and never blocks or fails
// these operations.
package edits

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/storage"
	"thirdcoast.systems/edits/internal/thumbnail"
	"thirdcoast.systems/edits/pkg/utils/tags"
)

var (
	ErrNotFound  = errors.New("edit not found")
	ErrForbidden = errors.New("not allowed to change this edit")
	ErrInvalid   = errors.New("invalid edit")
)

// VideoExtensions are the accepted upload types.
var VideoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// Store is the persistence the service needs. NewStore adapts *db.DatabaseConnection.
type Store interface {
	CreateEdit(ctx context.Context, params db.CreateEditParams) (*db.Edit, error)
	UpdateEdit(ctx context.Context, params db.UpdateEditParams) (*db.Edit, error)
	ReplaceEditVideo(ctx context.Context, id int64, videoRef string) (*db.Edit, *db.Edit, error)
	GetEdit(ctx context.Context, id int64) (*db.Edit, error)
	DeleteEdit(ctx context.Context, id int64) (int64, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*db.Category, error)
}

type dbStore struct {
	*db.DatabaseConnection
}

func NewStore(dbc *db.DatabaseConnection) Store {
	return dbStore{dbc}
}

func (s dbStore) GetEdit(ctx context.Context, id int64) (*db.Edit, error) {
	return s.Queries(ctx).GetEdit(ctx, id)
}

func (s dbStore) DeleteEdit(ctx context.Context, id int64) (int64, error) {
	return s.Queries(ctx).DeleteEdit(ctx, id)
}

func (s dbStore) GetCategoryBySlug(ctx context.Context, slug string) (*db.Category, error) {
	return s.Queries(ctx).GetCategoryBySlug(ctx, slug)
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID    pgtype.UUID
	Admin bool
}

func (a Actor) canModify(e *db.Edit) bool {
	return a.Admin || (a.ID.Valid && a.ID == e.AuthorID)
}

// Video is either an uploaded file or a remote URL; exactly one must be set.
type Video struct {
	File     io.Reader
	FileName string
	URL      string
}

type CreateInput struct {
	Title        string `validate:"required,max=255"`
	Description  string `validate:"max=5000"`
	CategorySlug string `validate:"omitempty,max=64"`
	// Tags is the comma separated list as typed by the user.
	Tags  string
	Video Video
}

type UpdateInput struct {
	Title        string `validate:"required,max=255"`
	Description  string `validate:"max=5000"`
	CategorySlug string `validate:"omitempty,max=64"`
	// Tags replaces the tag set when non-nil.
	Tags *string
}

type Service struct {
	store      Store
	media      storage.Storage
	dispatcher thumbnail.Dispatcher
	logger     *slog.Logger
	validate   *validator.Validate
	now        func() time.Time
}

func NewService(store Store, media storage.Storage, dispatcher thumbnail.Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		media:      media,
		dispatcher: dispatcher,
		logger:     logger,
		validate:   validator.New(),
		now:        time.Now,
	}
}

// Create stores the video, commits the edit and then dispatches thumbnail derivation.
func (s *Service) Create(ctx context.Context, author Actor, in CreateInput) (*db.Edit, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	categoryID, err := s.resolveCategory(ctx, in.CategorySlug)
	if err != nil {
		return nil, err
	}

	videoRef, stored, err := s.storeVideo(ctx, in.Video)
	if err != nil {
		return nil, err
	}

	edit, err := s.store.CreateEdit(ctx, db.CreateEditParams{
		Title:       in.Title,
		Description: in.Description,
		VideoRef:    videoRef,
		AuthorID:    author.ID,
		CategoryID:  categoryID,
		Tags:        tags.Parse(in.Tags),
	})
	if err != nil {
		if stored {
			s.remove(videoRef)
		}
		return nil, fmt.Errorf("create edit: %w", err)
	}
	s.logger.Info("edit created", "edit_id", edit.ID, "video_ref", videoRef)

	s.dispatch(ctx, edit.ID, false)
	return edit, nil
}

// Update changes title, description, category and tags. It never touches the thumbnail.
func (s *Service) Update(ctx context.Context, actor Actor, id int64, in UpdateInput) (*db.Edit, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	categoryID, err := s.resolveCategory(ctx, in.CategorySlug)
	if err != nil {
		return nil, err
	}

	params := db.UpdateEditParams{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		CategoryID:  categoryID,
	}
	if in.Tags != nil {
		cleaned := tags.Parse(*in.Tags)
		params.Tags = &cleaned
	}

	edit, err := s.store.UpdateEdit(ctx, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update edit: %w", err)
	}
	return edit, nil
}

// ReplaceVideo swaps the video, clears the stale thumbnail and derives a new one.
func (s *Service) ReplaceVideo(ctx context.Context, actor Actor, id int64, video Video) (*db.Edit, error) {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}

	videoRef, stored, err := s.storeVideo(ctx, video)
	if err != nil {
		return nil, err
	}

	updated, previous, err := s.store.ReplaceEditVideo(ctx, id, videoRef)
	if err != nil {
		if stored {
			s.remove(videoRef)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("replace video: %w", err)
	}

	if previous.VideoRef != videoRef {
		s.remove(previous.VideoRef)
	}
	if previous.ThumbnailRef != nil {
		s.remove(*previous.ThumbnailRef)
	}
	s.logger.Info("edit video replaced", "edit_id", id, "video_ref", videoRef)

	s.dispatch(ctx, id, false)
	return updated, nil
}

// Delete removes the edit and its stored media.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	edit, err := s.authorize(ctx, actor, id)
	if err != nil {
		return err
	}

	n, err := s.store.DeleteEdit(ctx, id)
	if err != nil {
		return fmt.Errorf("delete edit: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.remove(edit.VideoRef)
	if edit.ThumbnailRef != nil {
		s.remove(*edit.ThumbnailRef)
	}
	s.logger.Info("edit deleted", "edit_id", id)
	return nil
}

// RegenerateThumbnail requests a forced derivation. Unlike the implicit
// dispatch after create, a dispatch failure is returned to the caller.
func (s *Service) RegenerateThumbnail(ctx context.Context, actor Actor, id int64) error {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return err
	}
	if err := s.dispatcher.Dispatch(ctx, id, true); err != nil {
		return fmt.Errorf("regenerate thumbnail: %w", err)
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, actor Actor, id int64) (*db.Edit, error) {
	edit, err := s.store.GetEdit(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load edit: %w", err)
	}
	if !actor.canModify(edit) {
		return nil, ErrForbidden
	}
	return edit, nil
}

func (s *Service) resolveCategory(ctx context.Context, slug string) (*int64, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, nil
	}
	cat, err := s.store.GetCategoryBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalid, slug)
		}
		return nil, fmt.Errorf("load category: %w", err)
	}
	return &cat.ID, nil
}

// storeVideo returns the reference to record and whether a new object was written.
func (s *Service) storeVideo(ctx context.Context, v Video) (string, bool, error) {
	rawURL := strings.TrimSpace(v.URL)
	switch {
	case v.File != nil && rawURL != "":
		return "", false, fmt.Errorf("%w: provide either a video file or a video URL, not both", ErrInvalid)
	case rawURL != "":
		if err := s.validate.Var(rawURL, "url"); err != nil || !storage.IsRemote(rawURL) {
			return "", false, fmt.Errorf("%w: video URL must be an http(s) URL", ErrInvalid)
		}
		u, _ := url.Parse(rawURL)
		return u.String(), false, nil
	case v.File != nil:
		ext := strings.ToLower(path.Ext(v.FileName))
		if _, ok := VideoExtensions[ext]; !ok {
			return "", false, fmt.Errorf("%w: unsupported video type %q", ErrInvalid, ext)
		}
		ref, err := s.media.Save(ctx, storage.DatedName(storage.VideoPrefix, v.FileName, s.now()), v.File)
		if err != nil {
			return "", false, fmt.Errorf("store video: %w", err)
		}
		return ref, true, nil
	default:
		return "", false, fmt.Errorf("%w: a video file or video URL is required", ErrInvalid)
	}
}

// dispatch hands the edit to thumbnail derivation. Failures are logged only.
func (s *Service) dispatch(ctx context.Context, id int64, force bool) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, id, force); err != nil {
		s.logger.Error("failed to dispatch thumbnail derivation", "edit_id", id, "error", err)
	}
}

func (s *Service) remove(ref string) {
	if strings.TrimSpace(ref) == "" || storage.IsRemote(ref) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.media.Delete(ctx, ref); err != nil {
		s.logger.Error("failed to remove stored media", "ref", ref, "error", err)
	}
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %q", ErrInvalid, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}
