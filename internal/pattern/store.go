// Package pattern persists registered quote patterns in PostgreSQL. The
// store is the system of record: Kafka replays and registry snapshots are
// both rebuilt from it, so every lifecycle transition lands here first.
package pattern

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/postgres"
)

// Pattern lifecycle statuses. A pattern is PENDING from registration until
// a registry shard compiles it, then ACTIVE; compilation failures park it
// in FAILED.
const (
	StatusPending = "PENDING"
	StatusActive  = "ACTIVE"
	StatusFailed  = "FAILED"
)

// Record is one registered pattern row.
type Record struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Text               string    `json:"text"`
	ContentHash        string    `json:"content_hash"`
	TokenCount         int       `json:"token_count"`
	AllowedDifferences int       `json:"allowed_differences"`
	NomatchMultiplier  float64   `json:"nomatch_multiplier"`
	Threshold          float64   `json:"threshold"`
	ShardID            int       `json:"shard_id"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Store reads and writes pattern records.
//
// It requires a `patterns` table:
//
//	CREATE TABLE patterns (
//	    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    name                TEXT NOT NULL,
//	    text                TEXT NOT NULL,
//	    content_hash        TEXT NOT NULL UNIQUE,
//	    token_count         INT NOT NULL,
//	    allowed_differences INT NOT NULL DEFAULT 0,
//	    nomatch_multiplier  DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    threshold           DOUBLE PRECISION NOT NULL DEFAULT 1,
//	    shard_id            INT NOT NULL,
//	    status              TEXT NOT NULL DEFAULT 'PENDING',
//	    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a pattern store backed by the given database.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "pattern-store"),
	}
}

// Insert persists a new pattern and fills in its generated ID and
// timestamps. A pattern whose content hash is already registered is not
// re-inserted; the caller gets ErrPatternExists and can fetch the original
// through GetByContentHash.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO patterns
			    (name, text, content_hash, token_count, allowed_differences, nomatch_multiplier, threshold, shard_id, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id, created_at, updated_at`,
			rec.Name, rec.Text, rec.ContentHash, rec.TokenCount,
			rec.AllowedDifferences, rec.NomatchMultiplier, rec.Threshold,
			rec.ShardID, StatusPending,
		).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrPatternExists, "pattern content already registered")
		}
		return fmt.Errorf("inserting pattern: %w", err)
	}
	rec.Status = StatusPending
	return nil
}

// GetByID fetches one pattern.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

// GetByContentHash fetches the pattern registered for a content hash.
func (s *Store) GetByContentHash(ctx context.Context, hash string) (*Record, error) {
	return s.getWhere(ctx, `content_hash = $1`, hash)
}

func (s *Store) getWhere(ctx context.Context, where string, arg any) (*Record, error) {
	var rec Record
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, text, content_hash, token_count, allowed_differences,
		        nomatch_multiplier, threshold, shard_id, status, created_at, updated_at
		 FROM patterns WHERE `+where,
		arg,
	).Scan(
		&rec.ID, &rec.Name, &rec.Text, &rec.ContentHash, &rec.TokenCount,
		&rec.AllowedDifferences, &rec.NomatchMultiplier, &rec.Threshold,
		&rec.ShardID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrPatternNotFound, "pattern not found")
	}
	if isInvalidTextRepresentation(err) {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "malformed pattern id")
	}
	if err != nil {
		return nil, fmt.Errorf("querying pattern: %w", err)
	}
	return &rec, nil
}

// List returns a page of patterns ordered newest first, along with the
// total number of registered patterns.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM patterns`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting patterns: %w", err)
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, text, content_hash, token_count, allowed_differences,
		        nomatch_multiplier, threshold, shard_id, status, created_at, updated_at
		 FROM patterns ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing patterns: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Text, &rec.ContentHash, &rec.TokenCount,
			&rec.AllowedDifferences, &rec.NomatchMultiplier, &rec.Threshold,
			&rec.ShardID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning pattern row: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating pattern rows: %w", err)
	}
	return records, total, nil
}

// UpdateStatus records a lifecycle transition.
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE patterns SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("updating pattern status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.New(apperrors.ErrPatternNotFound, "pattern not found")
	}
	s.logger.Debug("pattern status updated", "pattern_id", id, "status", status)
	return nil
}

// CountByStatus returns the number of patterns per lifecycle status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM patterns GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting patterns by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// isUniqueViolation reports whether err is the PostgreSQL unique_violation
// error (SQLSTATE 23505), which the patterns.content_hash constraint raises
// for duplicate registrations.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isInvalidTextRepresentation reports SQLSTATE 22P02, raised when a lookup
// value cannot be cast to the column type, e.g. a non-UUID pattern id.
// Mapping it to ErrInvalidInput turns those lookups into 400s instead of
// 500s.
func isInvalidTextRepresentation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}
