package thumbnail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageReader is implemented by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaReader builds a consumer group reader for the thumbnail topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

// Consumer processes Jobs published by KafkaDispatcher. Offsets are committed
// after each attempt whatever its outcome, so a bad video is never redelivered.
type Consumer struct {
	reader    MessageReader
	processor *Processor
	logger    *slog.Logger
}

func NewConsumer(reader MessageReader, processor *Processor, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, processor: processor, logger: logger}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("failed to fetch thumbnail job", "error", err)
			sleepCtx(ctx, time.Second)
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to commit thumbnail job", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	job, err := DecodeJob(msg.Value)
	if err != nil {
		c.logger.Warn("dropping malformed thumbnail job", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}
	c.processor.Process(ctx, job.EditID, job.Force)
}
