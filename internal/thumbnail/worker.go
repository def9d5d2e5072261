package thumbnail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thirdcoast.systems/edits/internal/db"
)

const (
	// StuckAfter is how long a job may stay processing before it is requeued.
	StuckAfter = 5 * time.Minute
	// MaxJobAttempts bounds how often a crashed job is picked up again.
	MaxJobAttempts = 3

	maintenanceInterval = 2 * time.Minute
	idlePoll            = 5 * time.Second
	backfillBatch       = 50
)

// JobQueue is the thumbnail_jobs surface used by the worker. *db.Queries implements it.
type JobQueue interface {
	DequeueThumbnailJob(ctx context.Context) (*db.ThumbnailJob, error)
	MarkThumbnailJobSucceeded(ctx context.Context, id int64) error
	MarkThumbnailJobFailed(ctx context.Context, arg *db.MarkThumbnailJobFailedParams) error
	RecoverStuckThumbnailJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	FailExcessiveRetryThumbnailJobs(ctx context.Context, maxAttempts int32) (int64, error)
}

// Worker drains thumbnail_jobs. Several workers may share one queue; rows are claimed with SKIP LOCKED.
type Worker struct {
	queue     JobQueue
	processor *Processor
	logger    *slog.Logger
	poll      time.Duration
}

func NewWorker(queue JobQueue, processor *Processor, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, processor: processor, logger: logger, poll: idlePoll}
}

// Run processes jobs until ctx is done. A send on wake cuts the idle wait short.
func (w *Worker) Run(ctx context.Context, wake <-chan struct{}) {
	for {
		if ctx.Err() != nil {
			return
		}

		w.Drain(ctx)

		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-time.After(w.poll):
		}
	}
}

// Drain processes queued jobs until the queue is empty and returns how many it handled.
func (w *Worker) Drain(ctx context.Context) int {
	handled := 0
	for ctx.Err() == nil {
		job, err := w.queue.DequeueThumbnailJob(ctx)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) || ctx.Err() != nil {
				break
			}
			w.logger.Error("failed to dequeue thumbnail job", "error", err)
			sleepCtx(ctx, 2*time.Second)
			break
		}
		w.handle(ctx, job)
		handled++
	}
	return handled
}

func (w *Worker) handle(ctx context.Context, job *db.ThumbnailJob) {
	res := w.processor.Process(ctx, job.EditID, job.Force)

	if res.Outcome == OutcomeFailed {
		msg := res.Err.Error()
		if err := w.queue.MarkThumbnailJobFailed(ctx, &db.MarkThumbnailJobFailedParams{ID: job.ID, LastError: &msg}); err != nil {
			w.logger.Error("failed to mark thumbnail job failed", "thumbnail_job_id", job.ID, "error", err)
		}
		return
	}
	if err := w.queue.MarkThumbnailJobSucceeded(ctx, job.ID); err != nil {
		w.logger.Error("failed to mark thumbnail job succeeded", "thumbnail_job_id", job.ID, "error", err)
	}
}

// Maintain requeues stuck jobs and gives up on jobs that used their attempt budget.
func (w *Worker) Maintain(ctx context.Context) {
	if n, err := w.queue.RecoverStuckThumbnailJobs(ctx, StuckAfter); err != nil {
		w.logger.Error("failed to recover stuck thumbnail jobs", "error", err)
	} else if n > 0 {
		w.logger.Warn("requeued stuck thumbnail jobs", "count", n)
	}
	if n, err := w.queue.FailExcessiveRetryThumbnailJobs(ctx, MaxJobAttempts); err != nil {
		w.logger.Error("failed to fail excessive retry thumbnail jobs", "error", err)
	} else if n > 0 {
		w.logger.Warn("permanently failed thumbnail jobs exceeding max attempts", "count", n)
	}
}

// RunMaintenance calls Maintain now and then on every interval until ctx is done.
func (w *Worker) RunMaintenance(ctx context.Context) {
	w.Maintain(ctx)
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Maintain(ctx)
		}
	}
}

// MissingLister finds edits that still need a thumbnail. *db.Queries implements it.
type MissingLister interface {
	ListEditsMissingThumbnail(ctx context.Context, limit int32) ([]*db.EditThumbnailSource, error)
}

// Backfill dispatches edits that have no thumbnail and no pending job, such as
// edits created while the workers were down.
func Backfill(ctx context.Context, lister MissingLister, dispatcher Dispatcher, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	edits, err := lister.ListEditsMissingThumbnail(ctx, backfillBatch)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, e := range edits {
		if err := dispatcher.Dispatch(ctx, e.ID, false); err != nil {
			logger.Error("failed to dispatch thumbnail backfill", "edit_id", e.ID, "error", err)
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		logger.Info("thumbnail backfill dispatched", "count", dispatched)
	}
	return dispatched, nil
}

// ListenAndSignal LISTENs on the thumbnail_jobs channel over a dedicated
// connection and signals wake on every notification, reconnecting on error.
func ListenAndSignal(ctx context.Context, dsn string, wake chan<- struct{}) {
	for {
		if ctx.Err() != nil {
			return
		}

		// pgxpool consumes pool_* DSN params client-side.
		poolConf, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			slog.Error("listen parse config failed", "channel", db.ThumbnailJobsChannel, "error", err)
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		conn, err := pgx.ConnectConfig(ctx, poolConf.ConnConfig)
		if err != nil {
			slog.Error("listen connect failed", "channel", db.ThumbnailJobsChannel, "error", err)
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		if err := db.New(conn).ListenThumbnailJobs(ctx); err != nil {
			slog.Error("LISTEN failed", "channel", db.ThumbnailJobsChannel, "error", err)
			_ = conn.Close(context.Background())
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		for {
			if err := conn.PgConn().WaitForNotification(ctx); err != nil {
				if ctx.Err() == nil {
					slog.Error("wait for notification failed", "channel", db.ThumbnailJobsChannel, "error", err)
				}
				_ = conn.Close(context.Background())
				break
			}

			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
