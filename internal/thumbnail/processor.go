package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"thirdcoast.systems/edits/internal/db"
)

// ErrEditNotFound is reported when a queued edit was deleted before derivation.
var ErrEditNotFound = errors.New("thumbnail: edit not found")

// EditSource loads what derivation needs from an edit and remembers videos
// that failed, so backfill does not pick them up again. *db.Queries implements it.
type EditSource interface {
	GetEditThumbnailSource(ctx context.Context, id int64) (*db.EditThumbnailSource, error)
	RecordThumbnailFailure(ctx context.Context, arg *db.RecordThumbnailFailureParams) error
}

// Processor turns a dispatched edit id into a derivation attempt.
type Processor struct {
	deriver *Deriver
	source  EditSource
	logger  *slog.Logger
}

func NewProcessor(deriver *Deriver, source EditSource, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{deriver: deriver, source: source, logger: logger}
}

// Process derives a thumbnail for editID. An edit that already has one is
// skipped unless force is set, so re-dispatching an edit is harmless.
func (p *Processor) Process(ctx context.Context, editID int64, force bool) Result {
	if editID <= 0 {
		return p.deriver.Run(ctx, Target{ID: editID})
	}

	src, err := p.source.GetEditThumbnailSource(ctx, editID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			p.logger.Info("thumbnail skipped, edit is gone", "edit_id", editID)
			return Result{EditID: editID, Outcome: OutcomeSkipped, Err: ErrEditNotFound}
		}
		res := Result{EditID: editID, Outcome: OutcomeFailed, Err: fmt.Errorf("%w: load edit: %v", ErrPersist, err)}
		p.logger.Warn("thumbnail derivation failed", "edit_id", editID, "reason", res.Reason(), "error", res.Err)
		p.deriver.metrics.observe(res)
		return res
	}

	if src.ThumbnailRef != nil && *src.ThumbnailRef != "" && !force {
		p.logger.Debug("thumbnail skipped, edit already has one", "edit_id", editID)
		return Result{EditID: editID, Outcome: OutcomeSkipped, Ref: *src.ThumbnailRef}
	}

	res := p.deriver.Run(ctx, Target{
		ID:          src.ID,
		VideoRef:    src.VideoRef,
		PreviousRef: src.ThumbnailRef,
	})
	if res.Outcome == OutcomeFailed {
		p.recordFailure(ctx, src.ID, src.VideoRef, res)
	}
	return res
}

// recordFailure marks the video as failed. Shutdown interruptions are not recorded.
func (p *Processor) recordFailure(ctx context.Context, editID int64, videoRef string, res Result) {
	if ctx.Err() != nil {
		return
	}
	err := p.source.RecordThumbnailFailure(ctx, &db.RecordThumbnailFailureParams{
		EditID:   editID,
		VideoRef: videoRef,
		Reason:   res.Reason(),
	})
	if err != nil {
		p.logger.Warn("failed to record thumbnail failure", "edit_id", editID, "error", err)
	}
}
