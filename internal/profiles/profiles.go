// Package profiles updates user bios and avatars.
package profiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/storage"
)

const (
	MaxBioLength = 500
	AvatarSize   = 256
)

var (
	ErrNotFound = errors.New("profile not found")
	ErrInvalid  = errors.New("invalid profile")
)

// Store is satisfied by *db.Queries.
type Store interface {
	GetProfile(ctx context.Context, userID pgtype.UUID) (*db.Profile, error)
	UpdateProfile(ctx context.Context, arg *db.UpdateProfileParams) (*db.Profile, error)
}

type UpdateInput struct {
	Bio string
	// Avatar is an uploaded image; nil keeps the current avatar.
	Avatar io.Reader
}

type Service struct {
	store  Store
	media  storage.Storage
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, media storage.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, media: media, logger: logger, now: time.Now}
}

// Update replaces the bio and, when given, the avatar. Avatars are cropped to
// a centred AvatarSize square and stored as JPEG. The previous avatar is
// removed only after the new one is recorded.
func (s *Service) Update(ctx context.Context, userID pgtype.UUID, in UpdateInput) (*db.Profile, error) {
	bio := strings.TrimSpace(in.Bio)
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return nil, fmt.Errorf("%w: bio is longer than %d characters", ErrInvalid, MaxBioLength)
	}

	current, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	params := &db.UpdateProfileParams{UserID: userID, Bio: bio}
	if in.Avatar != nil {
		jpeg, err := NormalizeAvatar(in.Avatar)
		if err != nil {
			return nil, err
		}
		name := storage.DatedName(storage.AvatarPrefix, userID.String()+".jpg", s.now())
		ref, err := s.media.Save(ctx, name, bytes.NewReader(jpeg))
		if err != nil {
			return nil, fmt.Errorf("store avatar: %w", err)
		}
		params.AvatarRef = &ref
	}

	updated, err := s.store.UpdateProfile(ctx, params)
	if err != nil {
		if params.AvatarRef != nil {
			s.remove(*params.AvatarRef)
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	if params.AvatarRef != nil && current.AvatarRef != nil && *current.AvatarRef != *params.AvatarRef {
		s.remove(*current.AvatarRef)
	}
	return updated, nil
}

// NormalizeAvatar decodes r, honours EXIF orientation and returns a square JPEG.
func NormalizeAvatar(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: avatar is not a supported image", ErrInvalid)
	}
	square := imaging.Fill(img, AvatarSize, AvatarSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, square, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) remove(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.media.Delete(ctx, ref); err != nil {
		s.logger.Error("failed to remove avatar", "ref", ref, "error", err)
	}
}
