// Package aggregator persists aggregated analytics stats to PostgreSQL so
// scan history survives analytics service restarts.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/postgres"
)

// retainedSnapshots caps the table size. At the hourly snapshot cadence
// this keeps a week of history.
const retainedSnapshots = 168

// Store reads and writes stats snapshots. It expects the table:
//
//	CREATE TABLE analytics_snapshots (
//	    id          BIGSERIAL PRIMARY KEY,
//	    data        JSONB NOT NULL,
//	    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	db  *postgres.Client
	log *slog.Logger
}

// NewStore creates a Store on the given database.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:  db,
		log: slog.Default().With("component", "analytics-store"),
	}
}

// SaveSnapshot inserts one snapshot and prunes rows beyond the retention
// cap in the same transaction, so the table never grows past it.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
			data, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM analytics_snapshots
			 WHERE id NOT IN (
			     SELECT id FROM analytics_snapshots
			     ORDER BY captured_at DESC
			     LIMIT $1
			 )`,
			retainedSnapshots,
		)
		if err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.log.Info("analytics snapshot saved",
		"total_scans", stats.TotalScans,
		"patterns_compiled", stats.PatternsCompiled,
	)
	return nil
}

// LatestSnapshot returns the most recent snapshot, or nil when the table
// is empty.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer unmarshal are skipped rather than failing the whole read.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []analytics.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.log.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// StartPeriodicSave snapshots the aggregator on the given interval until
// ctx is cancelled, writing one final snapshot on the way out. It returns
// immediately.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				s.snapshot(ctx, agg, "periodic")
			case <-ctx.Done():
				finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				s.snapshot(finalCtx, agg, "final")
				cancel()
				return
			}
		}
	}()
	s.log.Info("periodic snapshot started", "interval", interval)
}

func (s *Store) snapshot(ctx context.Context, agg *analytics.Aggregator, kind string) {
	if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
		s.log.Error("snapshot failed", "kind", kind, "error", err)
	}
}
