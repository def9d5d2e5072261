// Package thumbnail derives a still image from an edit's video with ffmpeg.
//
// Derivation is best-effort: every failure is logged once, counted, and
// reported through Result. Nothing here ever fails or rolls back the edit.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"

	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/storage"
	"thirdcoast.systems/edits/pkg/ffmpeg"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxWidth = 1280
	// SeekOffset is where the frame is taken from.
	SeekOffset = time.Second

	jpegQuality = 85
)

// ThumbnailWriter records a derived thumbnail on its edit.
// *db.Queries implements it with a single-column UPDATE.
type ThumbnailWriter interface {
	UpdateEditThumbnail(ctx context.Context, arg *db.UpdateEditThumbnailParams) (int64, error)
}

// Target identifies the edit and video to derive from.
type Target struct {
	ID       int64
	VideoRef string
	// PreviousRef is removed from storage once the new thumbnail is recorded.
	PreviousRef *string
}

type Config struct {
	// FFmpegPath is the resolved executable; empty means "ffmpeg" from PATH.
	FFmpegPath string
	Timeout    time.Duration
	// TempDir hosts the per-attempt scratch directories; empty means os.TempDir().
	TempDir  string
	MaxWidth int
}

// Deriver extracts, stores and records thumbnails. It is safe for concurrent use.
type Deriver struct {
	cfg     Config
	storage storage.Storage
	store   ThumbnailWriter
	checker SourceChecker
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Deriver)

// WithSourceChecker pre-checks remote videos before spawning ffmpeg.
func WithSourceChecker(c SourceChecker) Option {
	return func(d *Deriver) { d.checker = c }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Deriver) { d.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Deriver) {
		if l != nil {
			d.logger = l
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(d *Deriver) { d.now = now }
}

func NewDeriver(cfg Config, st storage.Storage, store ThumbnailWriter, opts ...Option) *Deriver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxWidth < 0 {
		cfg.MaxWidth = 0
	}
	d := &Deriver{
		cfg:     cfg,
		storage: st,
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run performs one derivation attempt. It never returns an error; inspect the Result.
func (d *Deriver) Run(ctx context.Context, t Target) Result {
	started := time.Now()
	ref, err := d.run(ctx, t)

	res := Result{EditID: t.ID, Ref: ref, Err: err, Duration: time.Since(started)}
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Ref = ""
		attrs := []any{
			"edit_id", t.ID,
			"video_ref", t.VideoRef,
			"reason", res.Reason(),
			"duration", res.Duration,
			"error", err,
		}
		var ffErr *ffmpeg.Error
		if errors.As(err, &ffErr) {
			attrs = append(attrs, "exit_code", ffErr.ExitCode(), "stderr", ffErr.StderrTail(5))
		}
		d.logger.Warn("thumbnail derivation failed", attrs...)
	} else {
		res.Outcome = OutcomeSucceeded
		d.logger.Info("thumbnail derived", "edit_id", t.ID, "thumbnail_ref", ref, "duration", res.Duration)
	}
	d.metrics.observe(res)
	return res
}

func (d *Deriver) run(ctx context.Context, t Target) (string, error) {
	if t.ID <= 0 {
		return "", ErrNoIdentifier
	}
	videoRef := strings.TrimSpace(t.VideoRef)
	if videoRef == "" {
		return "", fmt.Errorf("%w: edit has no video", ErrSourceUnreachable)
	}

	input, err := d.resolveInput(ctx, videoRef)
	if err != nil {
		return "", err
	}

	scratch, err := os.MkdirTemp(d.cfg.TempDir, fmt.Sprintf("thumb-%d-*", t.ID))
	if err != nil {
		return "", fmt.Errorf("%w: create scratch directory: %v", ErrExtractionFailed, err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			d.logger.Error("failed to remove thumbnail scratch directory", "edit_id", t.ID, "dir", scratch, "error", err)
		}
	}()

	framePath := filepath.Join(scratch, "frame.jpg")
	if err := d.extract(ctx, input, framePath); err != nil {
		return "", err
	}

	data, err := d.prepare(framePath)
	if err != nil {
		return "", err
	}

	return d.persist(ctx, t, videoRef, data)
}

// resolveInput turns a video reference into an ffmpeg input and checks that it is there.
func (d *Deriver) resolveInput(ctx context.Context, videoRef string) (string, error) {
	input, err := d.storage.Locate(videoRef)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}

	if storage.IsRemote(input) {
		if d.checker != nil {
			checkCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
			defer cancel()
			if err := d.checker.Check(checkCtx, input); err != nil {
				return "", fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
			}
		}
		return input, nil
	}

	st, err := os.Stat(input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	if st.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrSourceUnreachable, videoRef)
	}
	return input, nil
}

func (d *Deriver) extract(ctx context.Context, input, output string) error {
	runCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	result := ffmpeg.ExtractFrame(runCtx, input, output, &ffmpeg.FrameOptions{
		Binary: d.cfg.FFmpegPath,
		Offset: SeekOffset,
	})
	if result.Err == nil {
		return nil
	}

	var ffErr *ffmpeg.Error
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return fmt.Errorf("%w after %s: %w", ErrTimeout, d.cfg.Timeout, result.Err)
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ErrExtractionFailed, ctx.Err())
	case !errors.As(result.Err, &ffErr):
		// The process never started.
		return fmt.Errorf("%w: %w", ErrBinaryNotFound, result.Err)
	default:
		return fmt.Errorf("%w: %w", ErrExtractionFailed, result.Err)
	}
}

// prepare validates the extracted frame and downscales it when wider than MaxWidth.
func (d *Deriver) prepare(framePath string) ([]byte, error) {
	raw, err := os.ReadFile(framePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputMissing, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: ffmpeg wrote an empty file", ErrOutputMissing)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s frame: %v", ErrOutputMissing, humanize.Bytes(uint64(len(raw))), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: frame has no pixels", ErrOutputMissing)
	}
	if d.cfg.MaxWidth == 0 || cfg.Width <= d.cfg.MaxWidth {
		return raw, nil
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode frame: %v", ErrOutputMissing, err)
	}
	resized := imaging.Resize(img, d.cfg.MaxWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", ErrOutputMissing, err)
	}
	return buf.Bytes(), nil
}

// persist stores the image and records it with a single-column update.
func (d *Deriver) persist(ctx context.Context, t Target, videoRef string, data []byte) (string, error) {
	name := storage.ThumbnailName(videoRef, d.now())
	ref, err := d.storage.Save(ctx, name, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: store %s: %v", ErrPersist, name, err)
	}

	n, err := d.store.UpdateEditThumbnail(ctx, &db.UpdateEditThumbnailParams{ID: t.ID, ThumbnailRef: &ref, VideoRef: t.VideoRef})
	if err != nil {
		d.discard(ref, t.ID)
		return "", fmt.Errorf("%w: record thumbnail: %v", ErrPersist, err)
	}
	if n == 0 {
		d.discard(ref, t.ID)
		return "", fmt.Errorf("%w: edit %d was deleted or its video replaced", ErrPersist, t.ID)
	}

	if t.PreviousRef != nil && *t.PreviousRef != "" && *t.PreviousRef != ref {
		d.discard(*t.PreviousRef, t.ID)
	}
	return ref, nil
}

// discard removes a stored object with a fresh context so cancellation cannot leak it.
func (d *Deriver) discard(ref string, editID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.storage.Delete(ctx, ref); err != nil {
		d.logger.Error("failed to remove stored thumbnail", "edit_id", editID, "thumbnail_ref", ref, "error", err)
	}
}
