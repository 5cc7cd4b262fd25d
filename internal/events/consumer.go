package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/observability/logging"
	"voice-translation-viewer/internal/observability/metrics"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer replays segment batches from Kafka into a viewer.
type Consumer struct {
	reader  MessageReader
	topic   string
	room    string
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewConsumer creates a consumer for the consume topic. Only batches of room
// are delivered; an empty room accepts every batch. It returns nil when
// Kafka or the consume topic is disabled.
func NewConsumer(cfg *Config, room string) *Consumer {
	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 || cfg.ConsumeTopic == "" {
		return nil
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.ConsumeTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		Dialer:   newDialer(),
	})
	return newConsumer(reader, cfg.ConsumeTopic, room)
}

func newConsumer(reader MessageReader, topic, room string) *Consumer {
	return &Consumer{
		reader:  reader,
		topic:   topic,
		room:    room,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("kafka-consumer"),
	}
}

// DecodeBatch parses a message value. Both the SegmentBatch envelope and a
// bare segment array are accepted.
func DecodeBatch(value []byte) (SegmentBatch, error) {
	var batch SegmentBatch
	if len(value) > 0 && value[0] == '[' {
		if err := json.Unmarshal(value, &batch.Segments); err != nil {
			return SegmentBatch{}, fmt.Errorf("decode segment array: %w", err)
		}
		return batch, nil
	}
	if err := json.Unmarshal(value, &batch); err != nil {
		return SegmentBatch{}, fmt.Errorf("decode segment batch: %w", err)
	}
	return batch, nil
}

// Run reads until ctx is cancelled and hands every batch to deliver in
// message order. Malformed messages are counted and skipped. The reader is
// closed on return.
func (c *Consumer) Run(ctx context.Context, deliver func([]models.Segment) error) error {
	defer c.reader.Close()

	c.logger.Info().Str("topic", c.topic).Str("room", c.room).Msg("Consuming segment batches")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", c.topic, err)
		}

		batch, err := DecodeBatch(msg.Value)
		if err != nil {
			c.metrics.RecordKafkaConsumed(c.topic, false)
			c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping malformed message")
			continue
		}
		c.metrics.RecordKafkaConsumed(c.topic, true)
		if c.room != "" && batch.Room != "" && batch.Room != c.room {
			continue
		}
		if err := deliver(batch.Segments); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
