// Package apikey manages the platform's API keys. A raw key is minted from
// crypto/rand, prefixed "qm_", and handed out exactly once; only its SHA-256
// digest is stored, so validation hashes the presented key and looks the
// digest up. Every key carries scopes that the gateway checks per route
// class.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// keyPrefix marks raw keys as belonging to this platform. Keys without it
// are rejected before the database is consulted.
const keyPrefix = "qm_"

// Scopes a key may carry.
const (
	ScopeScan     = "scan"
	ScopeRegister = "register"
	ScopeAdmin    = "admin"
)

// KeyInfo is what a validated key exposes downstream: everything but the
// hash.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	RateLimit int        `json:"rate_limit"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// HasScope reports whether the key carries the given scope.
// Admin keys implicitly carry every scope.
func (k *KeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope || s == ScopeAdmin {
			return true
		}
	}
	return false
}

// Validator checks and manages keys in the api_keys table:
//
//	CREATE TABLE api_keys (
//	    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    key_hash   TEXT NOT NULL UNIQUE,
//	    name       TEXT NOT NULL,
//	    scopes     TEXT[] NOT NULL DEFAULT '{scan}',
//	    rate_limit INT NOT NULL DEFAULT 100,
//	    is_active  BOOLEAN NOT NULL DEFAULT true,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    expires_at TIMESTAMPTZ
//	);
type Validator struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewValidator returns a Validator backed by the given database.
func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

// Validate resolves a raw key to its KeyInfo. Unknown and revoked keys come
// back as ErrInvalidKey, expired ones as ErrExpiredKey.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	if !strings.HasPrefix(rawKey, keyPrefix) {
		return nil, ErrInvalidKey
	}

	row := v.db.DB.QueryRowContext(ctx,
		`SELECT id, name, scopes, rate_limit, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	)
	info, err := scanInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if info.ExpiresAt != nil && time.Now().After(*info.ExpiresAt) {
		return nil, ErrExpiredKey
	}
	return info, nil
}

// CreateKey mints a key, stores its hash, and returns the raw key. This is
// the only time the raw key exists outside the caller's hands. An empty
// scope list defaults to scan-only; scope names are the caller's to
// validate.
func (v *Validator) CreateKey(ctx context.Context, name string, scopes []string, rateLimit int, expiresAt *time.Time) (string, error) {
	if len(scopes) == 0 {
		scopes = []string{ScopeScan}
	}
	rawKey := mintRawKey()

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}

	_, err := v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, scopes, rate_limit, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		HashKey(rawKey), name, pq.Array(scopes), rateLimit, expiry,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}

	v.logger.Info("api key created", "name", name, "scopes", scopes, "rate_limit", rateLimit)
	return rawKey, nil
}

// RevokeKey deactivates a key. Revocation is a flag flip, not a delete, so
// the key's name and history stay auditable.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1`,
		HashKey(rawKey),
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking revoke result: %w", err)
	}
	if n == 0 {
		return ErrInvalidKey
	}

	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns every active key, newest first. Hashes are never
// included.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT id, name, scopes, rate_limit, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE is_active = true
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		keys = append(keys, *info)
	}
	return keys, rows.Err()
}

// scanInfo reads one api_keys row. It accepts both *sql.Row and *sql.Rows.
func scanInfo(row interface{ Scan(dest ...any) error }) (*KeyInfo, error) {
	var (
		info      KeyInfo
		expiresAt sql.NullTime
	)
	if err := row.Scan(&info.ID, &info.Name, pq.Array(&info.Scopes), &info.RateLimit,
		&info.IsActive, &info.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		info.ExpiresAt = &expiresAt.Time
	}
	return &info, nil
}

// HashKey returns the SHA-256 hex digest stored for a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// mintRawKey returns a prefixed, hex-encoded 32-byte random key.
func mintRawKey() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return keyPrefix + hex.EncodeToString(b)
}
