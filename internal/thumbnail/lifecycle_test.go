package thumbnail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/storage"
)

// fakeEdits keeps edits, recorded failures and thumbnail writes in one place
// and applies the same matching rules as the SQL queries.
type fakeEdits struct {
	mu       sync.Mutex
	edits    map[int64]*db.EditThumbnailSource
	failures map[int64]db.RecordThumbnailFailureParams
	writes   []db.UpdateEditThumbnailParams
}

func newFakeEdits() *fakeEdits {
	return &fakeEdits{
		edits:    map[int64]*db.EditThumbnailSource{},
		failures: map[int64]db.RecordThumbnailFailureParams{},
	}
}

func (f *fakeEdits) add(id int64, videoRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[id] = &db.EditThumbnailSource{ID: id, VideoRef: videoRef}
}

// replaceVideo does what edits.Service.ReplaceVideo commits: new video, no thumbnail.
func (f *fakeEdits) replaceVideo(id int64, videoRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[id].VideoRef = videoRef
	f.edits[id].ThumbnailRef = nil
}

func (f *fakeEdits) get(id int64) db.EditThumbnailSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.edits[id]
}

func (f *fakeEdits) GetEditThumbnailSource(_ context.Context, id int64) (*db.EditThumbnailSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.edits[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEdits) UpdateEditThumbnail(_ context.Context, arg *db.UpdateEditThumbnailParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, *arg)
	e, ok := f.edits[arg.ID]
	if !ok || e.VideoRef != arg.VideoRef {
		return 0, nil
	}
	e.ThumbnailRef = arg.ThumbnailRef
	return 1, nil
}

func (f *fakeEdits) RecordThumbnailFailure(_ context.Context, arg *db.RecordThumbnailFailureParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[arg.EditID] = *arg
	return nil
}

func (f *fakeEdits) ListEditsMissingThumbnail(_ context.Context, limit int32) ([]*db.EditThumbnailSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.edits))
	for id := range f.edits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*db.EditThumbnailSource
	for _, id := range ids {
		e := f.edits[id]
		if e.ThumbnailRef != nil {
			continue
		}
		if failed, ok := f.failures[id]; ok && failed.VideoRef == e.VideoRef {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if int32(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func newEditsProcessor(t *testing.T, bin string, edits *fakeEdits) (*Processor, *storage.Local) {
	t.Helper()
	st, err := storage.NewLocal(t.TempDir(), "/media/")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDeriver(Config{FFmpegPath: bin, TempDir: t.TempDir(), Timeout: 5 * time.Second}, st, edits,
		WithLogger(logger), withClock(func() time.Time { return fixedNow }))
	return NewProcessor(d, edits, logger), st
}

func TestProcessor_VideoReplacedDuringDerivation(t *testing.T) {
	gate := t.TempDir()
	started := filepath.Join(gate, "started")
	release := filepath.Join(gate, "release")
	bin := stubFFmpeg(t, `touch "`+started+`"
while [ ! -f "`+release+`" ]; do sleep 0.02; done
for last; do :; done
cp "`+writeJPEG(t, 64, 36)+`" "$last"`)

	edits := newFakeEdits()
	edits.add(42, "https://example/old.mp4")
	p, st := newEditsProcessor(t, bin, edits)

	first := make(chan Result, 1)
	go func() { first <- p.Process(context.Background(), 42, false) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(started)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	edits.replaceVideo(42, "https://example/new.mp4")
	require.NoError(t, os.WriteFile(release, nil, 0o644))

	var stale Result
	select {
	case stale = <-first:
	case <-time.After(10 * time.Second):
		t.Fatal("first derivation did not finish")
	}
	assert.Equal(t, OutcomeFailed, stale.Outcome)
	assert.ErrorIs(t, stale.Err, ErrPersist)
	assert.Nil(t, edits.get(42).ThumbnailRef)

	// The frame of the old video is not left behind in storage.
	require.NotEmpty(t, edits.writes)
	_, err := st.Open(context.Background(), *edits.writes[0].ThumbnailRef)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	fresh := p.Process(context.Background(), 42, false)
	require.True(t, fresh.OK(), "%v", fresh.Err)

	final := edits.get(42)
	assert.Equal(t, "https://example/new.mp4", final.VideoRef)
	require.NotNil(t, final.ThumbnailRef)
	assert.Equal(t, fresh.Ref, *final.ThumbnailRef)
	assert.Contains(t, fresh.Ref, "thumb_new")
}

func TestBackfill_FailedVideosAreNotRetriedAfterRestart(t *testing.T) {
	bin := stubFFmpeg(t, `case "$*" in *broken*) exit 1;; esac
for last; do :; done
cp "`+writeJPEG(t, 64, 36)+`" "$last"`)

	edits := newFakeEdits()
	for id := int64(1); id <= backfillBatch; id++ {
		edits.add(id, fmt.Sprintf("https://example/broken-%d.mp4", id))
	}
	good := int64(backfillBatch + 1)
	edits.add(good, "https://example/good.mp4")

	p, _ := newEditsProcessor(t, bin, edits)
	dispatcher := NewInlineDispatcher(p)

	n, err := Backfill(context.Background(), edits, dispatcher, nil)
	require.NoError(t, err)
	assert.Equal(t, backfillBatch, n)
	assert.Len(t, edits.failures, backfillBatch)
	assert.Nil(t, edits.get(good).ThumbnailRef)

	// A restart reaches the edit behind the failed batch instead of resending it.
	n, err = Backfill(context.Background(), edits, dispatcher, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NotNil(t, edits.get(good).ThumbnailRef)

	n, err = Backfill(context.Background(), edits, dispatcher, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A new video makes a failed edit eligible again.
	edits.replaceVideo(1, "https://example/fixed.mp4")
	n, err = Backfill(context.Background(), edits, dispatcher, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	fixed := edits.get(1).ThumbnailRef
	require.NotNil(t, fixed)
	assert.True(t, strings.Contains(*fixed, "thumb_fixed"), *fixed)
}
