package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"thirdcoast.systems/edits/pkg/utils/filename"
)

// Local stores objects below a directory on the local filesystem.
type Local struct {
	root      string
	urlPrefix string
}

var _ Storage = (*Local)(nil)

// NewLocal creates root if needed. urlPrefix is where root is served over HTTP.
func NewLocal(root, urlPrefix string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/media/"
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &Local{root: abs, urlPrefix: urlPrefix}, nil
}

// Root returns the absolute media root.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) path(ref string) (string, string, error) {
	key, err := cleanKey(ref)
	if err != nil {
		return "", "", err
	}
	return key, filepath.Join(l.root, filepath.FromSlash(key)), nil
}

func (l *Local) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	key, dest, err := l.path(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", fmt.Errorf("chmod %s: %w", key, err)
	}

	// Link instead of rename so an existing object is never replaced.
	for attempt := 0; attempt < 8; attempt++ {
		candidate := key
		if attempt > 0 {
			candidate = path.Join(path.Dir(key), filename.WithSuffix(path.Base(key), uuid.NewString()[:8]))
		}
		target := filepath.Join(l.root, filepath.FromSlash(candidate))
		err := os.Link(tmpPath, target)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("store %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("store %s: no free name", key)
}

func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if IsRemote(ref) {
		return nil, ErrReadOnly
	}
	_, p, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (l *Local) Delete(ctx context.Context, ref string) error {
	if strings.TrimSpace(ref) == "" || IsRemote(ref) {
		return nil
	}
	key, p, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	slog.Debug("deleted stored object", "ref", key)
	return nil
}

func (l *Local) Locate(ref string) (string, error) {
	if IsRemote(ref) {
		return strings.TrimSpace(ref), nil
	}
	_, p, err := l.path(ref)
	return p, err
}

func (l *Local) URL(ref string) string {
	if IsRemote(ref) {
		return strings.TrimSpace(ref)
	}
	key, err := cleanKey(ref)
	if err != nil {
		return ""
	}
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return l.urlPrefix + strings.Join(segments, "/")
}
