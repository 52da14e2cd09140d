package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Event is one unit published to Kafka. Key picks the partition via hash,
// which keeps per-pattern ordering; Value is marshalled to JSON.
type Event struct {
	Key   string
	Value any
}

// Producer writes JSON events to a single topic, batching small bursts and
// compressing batches on the wire.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for the given topic. Writes are
// acknowledged by all in-sync replicas before returning.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchSize:              100,
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            3,
			RequiredAcks:           kafka.RequireAll,
			Compression:            kafka.Snappy,
			AllowAutoTopicCreation: true,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes one event synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.write(ctx, event)
}

// PublishBatch writes events in one round trip. Marshalling stops at the
// first bad value, so a batch is either fully encoded or not sent at all.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	return p.write(ctx, events...)
}

func (p *Producer) write(ctx context.Context, events ...Event) error {
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		value, err := json.Marshal(ev.Value)
		if err != nil {
			return fmt.Errorf("marshaling event %q: %w", ev.Key, err)
		}
		msgs[i] = kafka.Message{Key: []byte(ev.Key), Value: value}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish failed", "count", len(msgs), "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("published", "count", len(msgs))
	return nil
}

// Close flushes buffered messages and releases connections.
func (p *Producer) Close() error {
	return p.writer.Close()
}
