package thumbnail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"thirdcoast.systems/edits/internal/db"
)

// Dispatcher hands an edit to thumbnail derivation after the edit is committed.
// A dispatch error means the request was not handed off; it never means derivation failed.
type Dispatcher interface {
	Dispatch(ctx context.Context, editID int64, force bool) error
}

// Job is the message carried by the queue backed dispatchers.
type Job struct {
	EditID int64 `json:"edit_id"`
	Force  bool  `json:"force,omitempty"`
}

// InlineDispatcher derives synchronously in the caller's goroutine.
type InlineDispatcher struct {
	processor *Processor
}

func NewInlineDispatcher(p *Processor) *InlineDispatcher {
	return &InlineDispatcher{processor: p}
}

// Dispatch runs derivation and always returns nil; the Result has already been logged.
func (d *InlineDispatcher) Dispatch(ctx context.Context, editID int64, force bool) error {
	d.processor.Process(ctx, editID, force)
	return nil
}

// JobEnqueuer is implemented by *db.Queries.
type JobEnqueuer interface {
	EnqueueThumbnailJob(ctx context.Context, arg *db.EnqueueThumbnailJobParams) (*db.ThumbnailJob, error)
}

// PostgresDispatcher inserts a thumbnail_jobs row; the insert trigger wakes the workers.
type PostgresDispatcher struct {
	jobs   JobEnqueuer
	logger *slog.Logger
}

func NewPostgresDispatcher(jobs JobEnqueuer, logger *slog.Logger) *PostgresDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDispatcher{jobs: jobs, logger: logger}
}

func (d *PostgresDispatcher) Dispatch(ctx context.Context, editID int64, force bool) error {
	job, err := d.jobs.EnqueueThumbnailJob(ctx, &db.EnqueueThumbnailJobParams{EditID: editID, Force: force})
	if err != nil {
		return fmt.Errorf("enqueue thumbnail job: %w", err)
	}
	d.logger.Info("thumbnail job enqueued", "edit_id", editID, "thumbnail_job_id", job.ID, "force", force)
	return nil
}

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaDispatcher publishes a Job keyed by edit id, so one edit always lands on one partition.
type KafkaDispatcher struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewKafkaDispatcher(w MessageWriter, logger *slog.Logger) *KafkaDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaDispatcher{writer: w, logger: logger}
}

// NewKafkaWriter builds the writer used by KafkaDispatcher.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, editID int64, force bool) error {
	payload, err := json.Marshal(Job{EditID: editID, Force: force})
	if err != nil {
		return fmt.Errorf("encode thumbnail job: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(editID, 10)),
		Value: payload,
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish thumbnail job: %w", err)
	}
	d.logger.Info("thumbnail job published", "edit_id", editID, "force", force)
	return nil
}

// DecodeJob parses a Job from a kafka message value.
func DecodeJob(value []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(value, &job); err != nil {
		return Job{}, fmt.Errorf("decode thumbnail job: %w", err)
	}
	if job.EditID <= 0 {
		return Job{}, fmt.Errorf("decode thumbnail job: %w", ErrNoIdentifier)
	}
	return job, nil
}
