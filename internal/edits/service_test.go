package edits

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/storage"
)

type fakeStore struct {
	edits      map[int64]*db.Edit
	categories map[string]*db.Category
	nextID     int64
	createErr  error
	created    []db.CreateEditParams
	updated    []db.UpdateEditParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		edits:      map[int64]*db.Edit{},
		categories: map[string]*db.Category{"anime": {ID: 1, Name: "Anime", Slug: "anime"}},
		nextID:     41,
	}
}

func (f *fakeStore) CreateEdit(_ context.Context, p db.CreateEditParams) (*db.Edit, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	f.created = append(f.created, p)
	e := &db.Edit{ID: f.nextID, Title: p.Title, Description: p.Description, VideoRef: p.VideoRef, AuthorID: p.AuthorID, CategoryID: p.CategoryID}
	f.edits[e.ID] = e
	return e, nil
}

func (f *fakeStore) UpdateEdit(_ context.Context, p db.UpdateEditParams) (*db.Edit, error) {
	e, ok := f.edits[p.ID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	f.updated = append(f.updated, p)
	e.Title, e.Description, e.CategoryID = p.Title, p.Description, p.CategoryID
	return e, nil
}

func (f *fakeStore) ReplaceEditVideo(_ context.Context, id int64, videoRef string) (*db.Edit, *db.Edit, error) {
	e, ok := f.edits[id]
	if !ok {
		return nil, nil, pgx.ErrNoRows
	}
	prev := *e
	e.VideoRef = videoRef
	e.ThumbnailRef = nil
	return e, &prev, nil
}

func (f *fakeStore) GetEdit(_ context.Context, id int64) (*db.Edit, error) {
	e, ok := f.edits[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) DeleteEdit(_ context.Context, id int64) (int64, error) {
	if _, ok := f.edits[id]; !ok {
		return 0, nil
	}
	delete(f.edits, id)
	return 1, nil
}

func (f *fakeStore) GetCategoryBySlug(_ context.Context, slug string) (*db.Category, error) {
	c, ok := f.categories[slug]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return c, nil
}

type dispatchCall struct {
	id    int64
	force bool
}

type fakeDispatcher struct {
	calls []dispatchCall
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, id int64, force bool) error {
	f.calls = append(f.calls, dispatchCall{id, force})
	return f.err
}

type fixture struct {
	svc        *Service
	store      *fakeStore
	media      *storage.Local
	dispatcher *fakeDispatcher
	author     Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	media, err := storage.NewLocal(t.TempDir(), "/media/")
	require.NoError(t, err)
	f := &fixture{
		store:      newFakeStore(),
		media:      media,
		dispatcher: &fakeDispatcher{},
		author:     Actor{ID: db.PGUUID(uuid.New())},
	}
	f.svc = NewService(f.store, media, f.dispatcher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) exists(t *testing.T, ref string) bool {
	t.Helper()
	rc, err := f.media.Open(context.Background(), ref)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	rc.Close()
	return true
}

func TestCreate_UploadDispatchesAfterCommit(t *testing.T) {
	f := newFixture(t)

	edit, err := f.svc.Create(context.Background(), f.author, CreateInput{
		Title:        "  My AMV ",
		Description:  "**cool**",
		CategorySlug: "Anime",
		Tags:         "AMV, naruto, amv",
		Video:        Video{File: strings.NewReader("video"), FileName: "My Clip.MP4"},
	})
	require.NoError(t, err)

	assert.Equal(t, "My AMV", edit.Title)
	assert.Equal(t, "edits/videos/2024/05/01/My-Clip.mp4", edit.VideoRef)
	assert.True(t, f.exists(t, edit.VideoRef))
	require.NotNil(t, edit.CategoryID)
	assert.Equal(t, int64(1), *edit.CategoryID)
	assert.Equal(t, []string{"amv", "naruto"}, f.store.created[0].Tags)
	assert.Nil(t, edit.ThumbnailRef)
	assert.Equal(t, []dispatchCall{{edit.ID, false}}, f.dispatcher.calls)
}

func TestCreate_RemoteURL(t *testing.T) {
	f := newFixture(t)

	edit, err := f.svc.Create(context.Background(), f.author, CreateInput{
		Title: "Remote",
		Video: Video{URL: "https://example/video1.mp4"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example/video1.mp4", edit.VideoRef)
	assert.Len(t, f.dispatcher.calls, 1)
}

func TestCreate_DispatchFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("queue unavailable")

	edit, err := f.svc.Create(context.Background(), f.author, CreateInput{
		Title: "Still saved",
		Video: Video{URL: "https://example/video1.mp4"},
	})
	require.NoError(t, err)
	assert.Contains(t, f.store.edits, edit.ID)
}

func TestCreate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
	}{
		{name: "no title", in: CreateInput{Title: "  ", Video: Video{URL: "https://example/a.mp4"}}},
		{name: "long title", in: CreateInput{Title: strings.Repeat("t", 256), Video: Video{URL: "https://example/a.mp4"}}},
		{name: "no video", in: CreateInput{Title: "x"}},
		{name: "both videos", in: CreateInput{Title: "x", Video: Video{URL: "https://example/a.mp4", File: strings.NewReader("v"), FileName: "a.mp4"}}},
		{name: "ftp url", in: CreateInput{Title: "x", Video: Video{URL: "ftp://example/a.mp4"}}},
		{name: "bad extension", in: CreateInput{Title: "x", Video: Video{File: strings.NewReader("v"), FileName: "a.exe"}}},
		{name: "unknown category", in: CreateInput{Title: "x", CategorySlug: "cooking", Video: Video{URL: "https://example/a.mp4"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(context.Background(), f.author, tt.in)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Empty(t, f.store.created)
			assert.Empty(t, f.dispatcher.calls)
		})
	}
}

func TestCreate_StoreFailureRemovesUpload(t *testing.T) {
	f := newFixture(t)
	f.store.createErr = errors.New("insert failed")

	_, err := f.svc.Create(context.Background(), f.author, CreateInput{
		Title: "x",
		Video: Video{File: strings.NewReader("video"), FileName: "clip.mp4"},
	})
	require.Error(t, err)
	assert.False(t, f.exists(t, "edits/videos/2024/05/01/clip.mp4"))
	assert.Empty(t, f.dispatcher.calls)
}

func (f *fixture) seed(t *testing.T, thumb bool) *db.Edit {
	t.Helper()
	video, err := f.media.Save(context.Background(), "edits/videos/2024/04/01/old.mp4", bytes.NewReader([]byte("old")))
	require.NoError(t, err)
	e := &db.Edit{ID: 42, Title: "Seed", VideoRef: video, AuthorID: f.author.ID}
	if thumb {
		ref, err := f.media.Save(context.Background(), "edits/thumbnails/2024/04/01/thumb_old.jpg", bytes.NewReader([]byte("jpg")))
		require.NoError(t, err)
		e.ThumbnailRef = &ref
	}
	f.store.edits[e.ID] = e
	return e
}

func TestUpdate_NeverDispatches(t *testing.T) {
	f := newFixture(t)
	f.seed(t, true)
	tagList := "Edit, Sports"

	edit, err := f.svc.Update(context.Background(), f.author, 42, UpdateInput{Title: "Renamed", Tags: &tagList})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", edit.Title)
	require.NotNil(t, f.store.updated[0].Tags)
	assert.Equal(t, []string{"edit", "sports"}, *f.store.updated[0].Tags)
	assert.Empty(t, f.dispatcher.calls)
}

func TestUpdate_Authorization(t *testing.T) {
	f := newFixture(t)
	f.seed(t, false)

	stranger := Actor{ID: db.PGUUID(uuid.New())}
	_, err := f.svc.Update(context.Background(), stranger, 42, UpdateInput{Title: "Mine now"})
	assert.ErrorIs(t, err, ErrForbidden)

	admin := Actor{ID: db.PGUUID(uuid.New()), Admin: true}
	_, err = f.svc.Update(context.Background(), admin, 42, UpdateInput{Title: "Moderated"})
	assert.NoError(t, err)

	_, err = f.svc.Update(context.Background(), f.author, 404, UpdateInput{Title: "Ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceVideo_ClearsAndRederives(t *testing.T) {
	f := newFixture(t)
	seed := f.seed(t, true)
	oldVideo, oldThumb := seed.VideoRef, *seed.ThumbnailRef

	edit, err := f.svc.ReplaceVideo(context.Background(), f.author, 42, Video{File: strings.NewReader("new"), FileName: "new.webm"})
	require.NoError(t, err)

	assert.Equal(t, "edits/videos/2024/05/01/new.webm", edit.VideoRef)
	assert.Nil(t, edit.ThumbnailRef)
	assert.False(t, f.exists(t, oldVideo))
	assert.False(t, f.exists(t, oldThumb))
	assert.Equal(t, []dispatchCall{{42, false}}, f.dispatcher.calls)
}

func TestDelete_RemovesMedia(t *testing.T) {
	f := newFixture(t)
	seed := f.seed(t, true)

	require.ErrorIs(t, f.svc.Delete(context.Background(), Actor{ID: db.PGUUID(uuid.New())}, 42), ErrForbidden)
	require.NoError(t, f.svc.Delete(context.Background(), f.author, 42))

	assert.NotContains(t, f.store.edits, int64(42))
	assert.False(t, f.exists(t, seed.VideoRef))
	assert.False(t, f.exists(t, *seed.ThumbnailRef))
	assert.ErrorIs(t, f.svc.Delete(context.Background(), f.author, 42), ErrNotFound)
}

func TestRegenerateThumbnail(t *testing.T) {
	f := newFixture(t)
	f.seed(t, true)

	require.NoError(t, f.svc.RegenerateThumbnail(context.Background(), f.author, 42))
	assert.Equal(t, []dispatchCall{{42, true}}, f.dispatcher.calls)

	f.dispatcher.err = errors.New("queue unavailable")
	assert.Error(t, f.svc.RegenerateThumbnail(context.Background(), f.author, 42))
}
