package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/crowdlens/internal/config"
	"github.com/temcen/crowdlens/pkg/models"
)

const (
	engagementDLQSuffix = "-dlq"
	consumerGroup       = "engagement-ingesters"
)

// EngagementWriter is where consumed engagement events land.
type EngagementWriter interface {
	InsertRecord(ctx context.Context, record *models.EngagementRecord) error
}

// EngagementConsumer drains the engagement-events topic into the engagement
// store. Events that cannot be decoded or persisted go to the DLQ topic so
// the partition keeps moving.
type EngagementConsumer struct {
	reader    *kafka.Reader
	dlqWriter *kafka.Writer
	store     EngagementWriter
	logger    *logrus.Logger
}

func NewEngagementConsumer(
	cfg *config.Config,
	store EngagementWriter,
	logger *logrus.Logger,
) *EngagementConsumer {
	topic := cfg.Kafka.Topics.EngagementEvents

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        consumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic + engagementDLQSuffix,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &EngagementConsumer{
		reader:    reader,
		dlqWriter: dlqWriter,
		store:     store,
		logger:    logger,
	}
}

// Start blocks consuming messages until the context is canceled.
func (c *EngagementConsumer) Start(ctx context.Context) error {
	c.logger.WithField("topic", c.reader.Config().Topic).Info("Engagement consumer started")

	for {
		message, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read engagement message: %w", err)
		}

		if err := c.handleMessage(ctx, message); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"partition": message.Partition,
				"offset":    message.Offset,
			}).Error("Failed to process engagement event")
			c.sendToDLQ(ctx, message, err)
		}
	}
}

func (c *EngagementConsumer) handleMessage(ctx context.Context, message kafka.Message) error {
	var event models.EngagementEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal engagement event: %w", err)
	}

	createdAt := event.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	record := &models.EngagementRecord{
		UserID:          event.UserID,
		ContentID:       event.ContentID,
		EngagementType:  event.EngagementType,
		EngagementValue: event.EngagementValue,
		CreatedAt:       createdAt,
	}

	return c.store.InsertRecord(ctx, record)
}

func (c *EngagementConsumer) sendToDLQ(ctx context.Context, original kafka.Message, cause error) {
	dlqMessage := kafka.Message{
		Key:   original.Key,
		Value: original.Value,
		Headers: append(original.Headers, kafka.Header{
			Key:   "error",
			Value: []byte(cause.Error()),
		}),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.dlqWriter.WriteMessages(writeCtx, dlqMessage); err != nil {
		c.logger.WithError(err).Error("Failed to write engagement event to DLQ")
	}
}

func (c *EngagementConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close engagement reader: %w", err)
	}
	return c.dlqWriter.Close()
}
