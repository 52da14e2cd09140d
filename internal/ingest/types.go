// Package ingest defines the request/response types and Kafka event schema
// used by the pattern registration pipeline.
package ingest

import "time"

// RegisterRequest is the JSON body accepted by the registration endpoint.
// An omitted threshold means exact matching (1.0); the other tolerance
// fields default to zero, which disables them.
type RegisterRequest struct {
	Name               string  `json:"name"`
	Text               string  `json:"text"`
	AllowedDifferences int     `json:"allowed_differences"`
	NomatchMultiplier  float64 `json:"nomatch_multiplier"`
	Threshold          float64 `json:"threshold"`
}

// RegisterResponse is returned to the caller after a pattern is accepted.
// Duplicate is set when the same text was already registered, in which case
// PatternID names the original registration.
type RegisterResponse struct {
	PatternID string `json:"pattern_id"`
	Status    string `json:"status"`
	ShardID   int    `json:"shard_id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// PatternEvent is the Kafka message payload produced after a pattern is
// persisted, consumed by the registry shard that owns it for compilation.
type PatternEvent struct {
	PatternID          string    `json:"pattern_id"`
	Name               string    `json:"name"`
	Text               string    `json:"text"`
	AllowedDifferences int       `json:"allowed_differences"`
	NomatchMultiplier  float64   `json:"nomatch_multiplier"`
	Threshold          float64   `json:"threshold"`
	ShardID            int       `json:"shard_id"`
	RegisteredAt       time.Time `json:"registered_at"`
}
