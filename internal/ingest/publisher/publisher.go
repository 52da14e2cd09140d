// Package publisher persists registered patterns to PostgreSQL and
// publishes compilation events to Kafka for the registry shards. It assigns
// each pattern to a shard by content hash and deduplicates registrations of
// the same text.
package publisher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/tokenize"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/resilience"
)

// Publisher coordinates pattern persistence and Kafka event production.
type Publisher struct {
	store     *pattern.Store
	producer  *kafka.Producer
	numShards int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Publisher. numShards must match the registry deployment.
// metrics may be nil.
func New(store *pattern.Store, producer *kafka.Producer, numShards int, m *metrics.Metrics) *Publisher {
	return &Publisher{
		store:     store,
		producer:  producer,
		numShards: numShards,
		metrics:   m,
		logger:    slog.Default().With("component", "pattern-publisher"),
	}
}

// Register persists the pattern, assigns it a shard, and publishes a
// PatternEvent for compilation. Texts that tokenize identically hash to the
// same content hash, so re-registering a quote with different punctuation
// or casing returns the original pattern instead of inserting a new row.
func (p *Publisher) Register(ctx context.Context, req *ingest.RegisterRequest) (*ingest.RegisterResponse, error) {
	tokens := tokenize.Words(req.Text)
	contentHash := contentHashOf(tokens)
	shardID := assignShard(contentHash, p.numShards)

	threshold := req.Threshold
	if threshold == 0 {
		// An omitted threshold means exact matching.
		threshold = 1.0
	}

	rec := &pattern.Record{
		Name:               req.Name,
		Text:               req.Text,
		ContentHash:        contentHash,
		TokenCount:         len(tokens),
		AllowedDifferences: req.AllowedDifferences,
		NomatchMultiplier:  req.NomatchMultiplier,
		Threshold:          threshold,
		ShardID:            shardID,
	}

	if err := p.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, apperrors.ErrPatternExists) {
			existing, lookupErr := p.store.GetByContentHash(ctx, contentHash)
			if lookupErr != nil {
				return nil, fmt.Errorf("looking up duplicate pattern: %w", lookupErr)
			}
			p.logger.Info("duplicate pattern registration",
				"pattern_id", existing.ID,
				"content_hash", contentHash,
			)
			p.countRegistration("duplicate")
			return &ingest.RegisterResponse{
				PatternID: existing.ID,
				Status:    existing.Status,
				ShardID:   existing.ShardID,
				Duplicate: true,
			}, nil
		}
		return nil, err
	}

	event := kafka.Event{
		Key: strconv.Itoa(shardID),
		Value: ingest.PatternEvent{
			PatternID:          rec.ID,
			Name:               rec.Name,
			Text:               rec.Text,
			AllowedDifferences: rec.AllowedDifferences,
			NomatchMultiplier:  rec.NomatchMultiplier,
			Threshold:          rec.Threshold,
			ShardID:            shardID,
			RegisteredAt:       rec.CreatedAt,
		},
	}

	err := resilience.Retry(ctx, "pattern-event-publish", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return p.producer.Publish(ctx, event)
	})
	if err != nil {
		// The pattern stays PENDING; the registry never hears about it
		// until a replay or re-registration.
		p.logger.Error("failed to publish pattern event, pattern stuck in PENDING",
			"pattern_id", rec.ID,
			"shard_id", shardID,
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.KafkaPublishErrorsTotal.Inc()
		}
	}

	p.logger.Info("pattern registered",
		"pattern_id", rec.ID,
		"shard_id", shardID,
		"token_count", rec.TokenCount,
	)
	p.countRegistration("accepted")
	return &ingest.RegisterResponse{
		PatternID: rec.ID,
		Status:    rec.Status,
		ShardID:   shardID,
	}, nil
}

func (p *Publisher) countRegistration(result string) {
	if p.metrics != nil {
		p.metrics.PatternsRegisteredTotal.WithLabelValues(result).Inc()
	}
}

// contentHashOf fingerprints the normalized token stream, so texts that
// tokenize identically collide no matter how they are punctuated or
// cased.
func contentHashOf(tokens []string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(strings.Join(tokens, " "))))
}

// assignShard deterministically maps a content hash to a shard.
func assignShard(contentHash string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(contentHash))
	return int(h.Sum32() % uint32(numShards))
}
