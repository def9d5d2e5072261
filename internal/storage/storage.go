// Package storage persists uploaded and derived media.
//
// A reference (ref) is either a storage key relative to the media root, such as
// "edits/videos/2024/05/01/clip.mp4", or an absolute http(s) URL. URL references
// are accepted everywhere but are never written or deleted.
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"thirdcoast.systems/edits/pkg/utils/filename"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrReadOnly   = errors.New("storage: remote reference is read-only")
	ErrInvalidRef = errors.New("storage: invalid reference")
)

// Key prefixes for the objects this service stores.
const (
	VideoPrefix     = "edits/videos"
	ThumbnailPrefix = "edits/thumbnails"
	AvatarPrefix    = "avatars"
)

type Storage interface {
	// Save writes r under name and returns the reference actually used.
	// An existing object is never overwritten; a unique suffix is added instead.
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes the object. Missing objects and remote references are not errors.
	Delete(ctx context.Context, ref string) error
	// Locate returns something an external tool can read: a filesystem path or a URL.
	Locate(ref string) (string, error)
	// URL returns the public URL clients fetch the object from.
	URL(ref string) string
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// DatedName builds prefix/YYYY/MM/DD/<sanitized name>.
func DatedName(prefix, name string, t time.Time) string {
	return path.Join(prefix, t.Format("2006/01/02"), filename.SanitizeKeepExt(name, "file", 100))
}

// ThumbnailName is the key a derived thumbnail for videoRef is stored under.
func ThumbnailName(videoRef string, t time.Time) string {
	stem := filename.Stem(videoRef)
	if IsRemote(videoRef) {
		if u, err := url.Parse(videoRef); err == nil {
			stem = filename.Stem(u.Path)
		}
	}
	if strings.TrimSpace(stem) == "" || stem == "." || stem == "/" {
		stem = "video"
	}
	return DatedName(ThumbnailPrefix, "thumb_"+stem+".jpg", t)
}

// cleanKey normalises a storage key and rejects anything escaping the root.
func cleanKey(ref string) (string, error) {
	k := strings.TrimSpace(strings.ReplaceAll(ref, `\`, "/"))
	if k == "" || IsRemote(k) || strings.Contains(k, "://") {
		return "", ErrInvalidRef
	}
	k = path.Clean("/" + k)
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", ErrInvalidRef
	}
	return k, nil
}
