package db

import (
	"context"
	"time"
)

const thumbnailJobColumns = `id, edit_id, force, status, attempts, last_error, created_at, updated_at, started_at, finished_at`

func scanThumbnailJob(row interface{ Scan(...any) error }) (*ThumbnailJob, error) {
	var i ThumbnailJob
	err := row.Scan(
		&i.ID,
		&i.EditID,
		&i.Force,
		&i.Status,
		&i.Attempts,
		&i.LastError,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.StartedAt,
		&i.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

const enqueueThumbnailJob = `INSERT INTO thumbnail_jobs (edit_id, force)
VALUES ($1, $2)
RETURNING ` + thumbnailJobColumns

type EnqueueThumbnailJobParams struct {
	EditID int64
	Force  bool
}

// EnqueueThumbnailJob inserts a queued job; the insert trigger notifies the thumbnail_jobs channel.
func (q *Queries) EnqueueThumbnailJob(ctx context.Context, arg *EnqueueThumbnailJobParams) (*ThumbnailJob, error) {
	return scanThumbnailJob(q.db.QueryRow(ctx, enqueueThumbnailJob, arg.EditID, arg.Force))
}

const dequeueThumbnailJob = `UPDATE thumbnail_jobs
SET status = 'processing',
    attempts = attempts + 1,
    started_at = now(),
    updated_at = now()
WHERE id = (
    SELECT id FROM thumbnail_jobs
    WHERE status = 'queued'
    ORDER BY created_at, id
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING ` + thumbnailJobColumns

// DequeueThumbnailJob claims the oldest queued job. It returns pgx.ErrNoRows when the queue is empty.
func (q *Queries) DequeueThumbnailJob(ctx context.Context) (*ThumbnailJob, error) {
	return scanThumbnailJob(q.db.QueryRow(ctx, dequeueThumbnailJob))
}

const markThumbnailJobSucceeded = `UPDATE thumbnail_jobs
SET status = 'succeeded', last_error = NULL, finished_at = now(), updated_at = now()
WHERE id = $1`

func (q *Queries) MarkThumbnailJobSucceeded(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, markThumbnailJobSucceeded, id)
	return err
}

const markThumbnailJobFailed = `UPDATE thumbnail_jobs
SET status = 'failed', last_error = $2, finished_at = now(), updated_at = now()
WHERE id = $1`

type MarkThumbnailJobFailedParams struct {
	ID        int64
	LastError *string
}

func (q *Queries) MarkThumbnailJobFailed(ctx context.Context, arg *MarkThumbnailJobFailedParams) error {
	_, err := q.db.Exec(ctx, markThumbnailJobFailed, arg.ID, arg.LastError)
	return err
}

const recoverStuckThumbnailJobs = `UPDATE thumbnail_jobs
SET status = 'queued', updated_at = now()
WHERE status = 'processing'
  AND started_at < now() - make_interval(secs => $1::float8)`

// RecoverStuckThumbnailJobs requeues jobs that have been processing for longer than olderThan.
func (q *Queries) RecoverStuckThumbnailJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := q.db.Exec(ctx, recoverStuckThumbnailJobs, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const failExcessiveRetryThumbnailJobs = `UPDATE thumbnail_jobs
SET status = 'failed',
    last_error = COALESCE(last_error, 'exceeded maximum attempts'),
    finished_at = now(),
    updated_at = now()
WHERE status = 'queued'
  AND attempts >= $1`

// FailExcessiveRetryThumbnailJobs fails requeued jobs that already used their attempt budget.
func (q *Queries) FailExcessiveRetryThumbnailJobs(ctx context.Context, maxAttempts int32) (int64, error) {
	tag, err := q.db.Exec(ctx, failExcessiveRetryThumbnailJobs, maxAttempts)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ThumbnailJobsChannel is the NOTIFY channel raised on every enqueue.
const ThumbnailJobsChannel = "thumbnail_jobs"

const listenThumbnailJobs = `LISTEN thumbnail_jobs`

func (q *Queries) ListenThumbnailJobs(ctx context.Context) error {
	_, err := q.db.Exec(ctx, listenThumbnailJobs)
	return err
}
