// Package fileserver serves stored media with ETags and conditional GET support.
package fileserver

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/edits/internal/storage"
)

// HashLimit is the largest file that gets a content hash ETag. Videos above
// it get a weak ETag from size and modtime.
const HashLimit = 4 << 20

type etagEntry struct {
	size    int64
	modTime time.Time
	etag    string
}

// ETagCache remembers content hashes until a file's size or modtime changes.
type ETagCache struct {
	mu      sync.RWMutex
	entries map[string]etagEntry
}

func NewETagCache() *ETagCache {
	return &ETagCache{entries: make(map[string]etagEntry)}
}

// ETag returns a strong sha256 ETag for small files and a weak one otherwise.
func (c *ETagCache) ETag(path string, info os.FileInfo) (string, error) {
	if info.Size() > HashLimit {
		return weakETag(info), nil
	}

	c.mu.RLock()
	e, ok := c.entries[path]
	c.mu.RUnlock()
	if ok && e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
		return e.etag, nil
	}

	etag, err := hashFile(path)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.entries[path] = etagEntry{size: info.Size(), modTime: info.ModTime(), etag: etag}
	c.mu.Unlock()
	return etag, nil
}

func weakETag(info os.FileInfo) string {
	return fmt.Sprintf(`W/"%x-%x"`, info.ModTime().Unix(), info.Size())
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf(`"%x"`, h.Sum(nil)), nil
}

type FileServer struct {
	etags *ETagCache
}

func NewFileServer() *FileServer {
	return &FileServer{etags: NewETagCache()}
}

// ServeRef serves a stored object. Remote references are redirected to.
func (fs *FileServer) ServeRef(c echo.Context, media storage.Storage, ref string, cacheControl string) error {
	if storage.IsRemote(ref) {
		return c.Redirect(http.StatusFound, strings.TrimSpace(ref))
	}
	absPath, err := media.Locate(ref)
	if err != nil {
		return echo.ErrNotFound
	}
	return fs.serveFile(c, absPath, cacheControl)
}

// MediaHandler serves GET <prefix>* from the local media root.
func (fs *FileServer) MediaHandler(media storage.Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ref, err := url.PathUnescape(c.Param("*"))
		if err != nil || ref == "" || storage.IsRemote(ref) {
			return echo.ErrNotFound
		}
		return fs.ServeRef(c, media, ref, "public, max-age=86400")
	}
}

func (fs *FileServer) serveFile(c echo.Context, absPath, cacheControl string) error {
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		return echo.ErrNotFound
	}
	f, err := os.Open(absPath)
	if err != nil {
		return echo.ErrNotFound
	}
	defer f.Close()

	h := c.Response().Header()
	h.Set(echo.HeaderCacheControl, cacheControl)
	if etag, err := fs.etags.ETag(absPath, info); err == nil {
		h.Set("ETag", etag)
	} else {
		slog.Warn("failed to compute etag", "path", absPath, "error", err)
	}
	if ct := mime.TypeByExtension(filepath.Ext(absPath)); ct != "" {
		h.Set(echo.HeaderContentType, ct)
	}

	// ServeContent answers If-None-Match, If-Modified-Since and Range requests.
	http.ServeContent(c.Response(), c.Request(), filepath.Base(absPath), info.ModTime(), f)
	return nil
}
