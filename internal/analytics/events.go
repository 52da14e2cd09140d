package analytics

import "time"

type EventType string

const (
	EventScan            EventType = "scan"
	EventCacheHit        EventType = "cache_hit"
	EventCacheMiss       EventType = "cache_miss"
	EventPatternCompiled EventType = "pattern_compiled"
	EventZeroMatch       EventType = "zero_match"
)

type ScanEvent struct {
	Type            EventType `json:"type"`
	RequestID       string    `json:"request_id"`
	TokenCount      int       `json:"token_count"`
	PatternsScanned int       `json:"patterns_scanned"`
	TotalMatches    int       `json:"total_matches"`
	Returned        int       `json:"returned"`
	TopScore        float64   `json:"top_score"`
	TopPatternID    string    `json:"top_pattern_id,omitempty"`
	LatencyMs       int64     `json:"latency_ms"`
	CacheHit        bool      `json:"cache_hit"`
	ShardCount      int       `json:"shard_count"`
	Timestamp       time.Time `json:"timestamp"`
}

type PatternCompiledEvent struct {
	Type       EventType `json:"type"`
	PatternID  string    `json:"pattern_id"`
	Name       string    `json:"name"`
	ShardID    int       `json:"shard_id"`
	TokenCount int       `json:"token_count"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}
