// Package events carries segment batches inside the process (Bus) and across
// processes over Kafka (Publisher, Consumer).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/observability/metrics"
)

// SegmentBatch is the Kafka message payload: one accepted batch of a room.
type SegmentBatch struct {
	Room        string           `json:"room"`
	Segments    []models.Segment `json:"segments"`
	PublishedAt int64            `json:"publishedAt"`
}

// Config holds Kafka configuration shared by the publisher and the consumer.
type Config struct {
	Brokers      []string
	ExportTopic  string
	ConsumeTopic string
	GroupID      string
	Principal    string
	Enabled      bool
}

// Publisher exports accepted segment batches to Kafka. When Kafka is
// disabled it only logs.
type Publisher struct {
	writer    *kafka.Writer
	principal string
	topic     string
	enabled   bool
	metrics   *metrics.Metrics
}

func newDialer() *kafka.Dialer {
	return &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
}

// New creates a publisher for the export topic.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 || cfg.ExportTopic == "" {
		log.Info().Msg("Kafka export disabled, using log-only mode")
		return &Publisher{
			principal: cfg.Principal,
			topic:     cfg.ExportTopic,
			metrics:   m,
		}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.ExportTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: newDialer().DialFunc},
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.ExportTopic).
		Str("principal", cfg.Principal).
		Msg("Kafka segment exporter initialized")

	return &Publisher{
		writer:    writer,
		principal: cfg.Principal,
		topic:     cfg.ExportTopic,
		enabled:   true,
		metrics:   m,
	}
}

// PublishSegments writes one batch keyed by room so a room's batches stay on
// one partition and keep their order.
func (p *Publisher) PublishSegments(ctx context.Context, room string, batch []models.Segment) error {
	start := time.Now()

	payload, err := json.Marshal(SegmentBatch{
		Room:        room,
		Segments:    batch,
		PublishedAt: start.UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Str("topic", p.topic).Msg("Failed to marshal segment batch")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", p.topic).
		Str("key", room).
		Int("segments", len(batch)).
		Msg("Publishing segment batch")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordKafkaPublish(p.topic, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(room),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("segments")},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", p.topic).
			Str("key", room).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(p.topic, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(p.topic, nil, time.Since(start).Seconds())
	return nil
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing segment writer")
		return err
	}
	return nil
}
