// Package kafka wraps segmentio/kafka-go with the JSON event conventions
// the services share. Producers hash events onto partitions by key, and
// consumers dispatch raw messages to a MessageHandler callback.
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

// MessageHandler processes one Kafka message. Returning nil commits the
// offset; returning an error leaves it uncommitted for redelivery.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// fetchBackoff paces the consume loop when the brokers are unreachable, so
// a dead cluster does not turn the loop into a busy spin.
const fetchBackoff = time.Second

// Consumer pulls messages from one topic as part of the shared consumer
// group and feeds them to its handler in order.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	logger  *slog.Logger
}

// NewConsumer builds a Consumer on the shared consumer group. New
// consumers join at the latest offset; history replay is not a goal.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	logger := slog.Default().With("component", "kafka-consumer", "topic", topic)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	})
	return &Consumer{
		reader:  reader,
		handler: handler,
		logger:  logger,
	}
}

// Start runs the consume loop until ctx is cancelled, then closes the
// reader so the consumer group rebalances promptly.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", context.Cause(ctx))
				return c.reader.Close()
			}
			c.logger.Error("fetch failed", "error", err)
			select {
			case <-time.After(fetchBackoff):
			case <-ctx.Done():
			}
			continue
		}
		c.consume(ctx, msg)
	}
}

func (c *Consumer) consume(ctx context.Context, msg kafka.Message) {
	c.logger.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"value_size", len(msg.Value),
	)
	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		// Uncommitted: the message comes back after a restart or rebalance.
		c.logger.Error("handler failed, offset not committed",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("commit failed",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

// Close closes the underlying reader. Safe to call while Start is running.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("decoding kafka message: %w", err)
	}
	return out, nil
}
