// Package consumer reads pattern events from Kafka and compiles them
// into the shard registries, keeping PostgreSQL status and the
// analytics stream informed along the way.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/tokenize"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
)

// PatternConsumer wraps a Kafka consumer to drive pattern compilation.
type PatternConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a PatternConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *PatternConsumer {
	return &PatternConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "pattern-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (pc *PatternConsumer) Start(ctx context.Context) error {
	pc.logger.Info("pattern consumer starting")
	return pc.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that compiles each
// pattern event and installs it in the shard the publisher assigned.
// If store is non-nil, the pattern status moves from PENDING to ACTIVE
// (or FAILED) in PostgreSQL. If events is non-nil, a compilation event
// is published for the analytics pipeline.
//
// Compile failures are terminal: the event was validated at ingest, so
// a pattern that will not compile here can never succeed on redelivery.
// Those messages are marked FAILED and committed rather than retried.
func HandleMessage(router *shard.Router, store *pattern.Store, events *kafka.Producer, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "pattern-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingest.PatternEvent](value)
		if err != nil {
			logger.Error("failed to decode pattern event",
				"error", err,
				"key", string(key),
			)
			return nil
		}

		reg, err := router.Route(event.ShardID)
		if err != nil {
			return fmt.Errorf("routing shard %d: %w", event.ShardID, err)
		}

		logger.Debug("processing pattern event",
			"pattern_id", event.PatternID,
			"shard_id", event.ShardID,
		)

		tokens := tokenize.Words(event.Text)
		compiled, err := registry.Compile(snapshot.Record{
			ID:                 event.PatternID,
			Name:               event.Name,
			Tokens:             tokens,
			AllowedDifferences: event.AllowedDifferences,
			NomatchMultiplier:  event.NomatchMultiplier,
			Threshold:          event.Threshold,
			RegisteredAt:       event.RegisteredAt,
		})
		if err != nil {
			logger.Error("pattern failed to compile",
				"pattern_id", event.PatternID,
				"shard_id", event.ShardID,
				"error", err,
			)
			updatePatternStatus(ctx, store, event.PatternID, pattern.StatusFailed, logger)
			countCompilation(m, "failed")
			publishCompiled(ctx, events, &event, len(tokens), "failed", logger)
			return nil
		}

		reg.Add(compiled)
		updatePatternStatus(ctx, store, event.PatternID, pattern.StatusActive, logger)
		countCompilation(m, "compiled")
		publishCompiled(ctx, events, &event, len(tokens), "compiled", logger)

		logger.Info("pattern compiled",
			"pattern_id", event.PatternID,
			"shard_id", event.ShardID,
			"tokens", len(tokens),
		)
		return nil
	}
}

// updatePatternStatus moves the pattern's lifecycle status in PostgreSQL.
// If store is nil, the update is silently skipped.
func updatePatternStatus(ctx context.Context, store *pattern.Store, patternID, status string, logger *slog.Logger) {
	if store == nil {
		return
	}
	if err := store.UpdateStatus(ctx, patternID, status); err != nil {
		logger.Error("failed to update pattern status",
			"pattern_id", patternID,
			"status", status,
			"error", err,
		)
	}
}

// publishCompiled emits a pattern_compiled analytics event. Publish
// failures are logged and dropped; analytics never blocks compilation.
func publishCompiled(ctx context.Context, events *kafka.Producer, ev *ingest.PatternEvent, tokenCount int, status string, logger *slog.Logger) {
	if events == nil {
		return
	}
	err := events.Publish(ctx, kafka.Event{
		Key: ev.PatternID,
		Value: analytics.PatternCompiledEvent{
			Type:       analytics.EventPatternCompiled,
			PatternID:  ev.PatternID,
			Name:       ev.Name,
			ShardID:    ev.ShardID,
			TokenCount: tokenCount,
			Status:     status,
			Timestamp:  time.Now().UTC(),
		},
	})
	if err != nil {
		logger.Error("failed to publish compilation event",
			"pattern_id", ev.PatternID,
			"error", err,
		)
	}
}

func countCompilation(m *metrics.Metrics, status string) {
	if m == nil {
		return
	}
	m.PatternsCompiledTotal.WithLabelValues(status).Inc()
}
