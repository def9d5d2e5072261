package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), "/media")
	require.NoError(t, err)
	return l
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://cdn.example.com/v.mp4"))
	assert.True(t, IsRemote(" http://cdn.example.com/v.mp4 "))
	assert.False(t, IsRemote("ftp://cdn.example.com/v.mp4"))
	assert.False(t, IsRemote("edits/videos/2024/01/01/v.mp4"))
	assert.False(t, IsRemote("/abs/path/v.mp4"))
	assert.False(t, IsRemote("https:///nohost"))
}

func TestDatedName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "edits/videos/2024/03/09/my-clip.mp4", DatedName(VideoPrefix, "my clip.MP4", ts))
	assert.Equal(t, "edits/thumbnails/2024/03/09/thumb_my-clip.jpg", ThumbnailName("edits/videos/2024/03/01/my-clip.mp4", ts))
	assert.Equal(t, "edits/thumbnails/2024/03/09/thumb_intro.jpg", ThumbnailName("https://cdn.example.com/v/intro.webm?sig=abc", ts))
	assert.Equal(t, "edits/thumbnails/2024/03/09/thumb_video.jpg", ThumbnailName("https://cdn.example.com/", ts))
}

func TestLocal_SaveOpenDelete(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()

	ref, err := l.Save(ctx, "edits/thumbnails/2024/01/02/thumb_a.jpg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "edits/thumbnails/2024/01/02/thumb_a.jpg", ref)

	rc, err := l.Open(ctx, ref)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(b))

	p, err := l.Locate(ref)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.Root(), "edits", "thumbnails", "2024", "01", "02", "thumb_a.jpg"), p)

	require.NoError(t, l.Delete(ctx, ref))
	_, err = l.Open(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is fine.
	require.NoError(t, l.Delete(ctx, ref))
}

func TestLocal_SaveNeverOverwrites(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()

	first, err := l.Save(ctx, "edits/videos/2024/01/02/clip.mp4", strings.NewReader("one"))
	require.NoError(t, err)
	second, err := l.Save(ctx, "edits/videos/2024/01/02/clip.mp4", strings.NewReader("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(second, "edits/videos/2024/01/02/clip_"))
	assert.True(t, strings.HasSuffix(second, ".mp4"))

	p, err := l.Locate(first)
	require.NoError(t, err)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))
}

func TestLocal_SaveLeavesNoTempFiles(t *testing.T) {
	l := newLocal(t)
	_, err := l.Save(context.Background(), "a/b.txt", strings.NewReader("x"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(l.Root(), "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.txt", entries[0].Name())
}

func TestLocal_TraversalStaysInsideRoot(t *testing.T) {
	l := newLocal(t)

	p, err := l.Locate("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, l.Root()+string(filepath.Separator)))

	_, err = l.Locate("   ")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestLocal_RemoteReferences(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()
	ref := "https://cdn.example.com/videos/a-b.mp4"

	p, err := l.Locate(ref)
	require.NoError(t, err)
	assert.Equal(t, ref, p)
	assert.Equal(t, ref, l.URL(ref))

	_, err = l.Open(ctx, ref)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.NoError(t, l.Delete(ctx, ref))
}

func TestLocal_URL(t *testing.T) {
	l := newLocal(t)
	assert.Equal(t, "/media/edits/thumbnails/2024/01/02/thumb_a%20b.jpg", l.URL("edits/thumbnails/2024/01/02/thumb_a b.jpg"))
	assert.Equal(t, "", l.URL(""))
}

func TestLocal_SaveHonoursCancelledContext(t *testing.T) {
	l := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Save(ctx, "x.jpg", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
