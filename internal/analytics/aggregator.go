package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/kafka"
)

// maxLatencySamples bounds the in-memory latency window. Once full, the
// older half is discarded, so percentiles track recent traffic.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalScans         int64          `json:"total_scans"`
	PatternsCompiled   int64          `json:"patterns_compiled"`
	FailedCompilations int64          `json:"failed_compilations"`
	CacheHits          int64          `json:"cache_hits"`
	CacheMisses        int64          `json:"cache_misses"`
	ZeroMatchCount     int64          `json:"zero_match_count"`
	AvgLatencyMs       float64        `json:"avg_latency_ms"`
	P50LatencyMs       int64          `json:"p50_latency_ms"`
	P90LatencyMs       int64          `json:"p90_latency_ms"`
	P99LatencyMs       int64          `json:"p99_latency_ms"`
	AvgMatchesPerScan  float64        `json:"avg_matches_per_scan"`
	TopPatterns        []PatternCount `json:"top_patterns"`
	ScansPerMinute     float64        `json:"scans_per_minute"`
}

type PatternCount struct {
	PatternID string `json:"pattern_id"`
	Count     int64  `json:"count"`
}

type Aggregator struct {
	mu            sync.RWMutex
	totalScans    atomic.Int64
	compiled      atomic.Int64
	failed        atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	zeroMatches   atomic.Int64
	totalMatches  atomic.Int64
	latencies     []int64
	patternCounts map[string]int64
	startTime     time.Time

	logger *slog.Logger
}

// NewAggregator returns an empty aggregator. Feed it by registering
// HandleEvent as the consumer handler for the analytics topic.
func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:     make([]int64, 0, maxLatencySamples),
		patternCounts: make(map[string]int64),
		startTime:     time.Now(),
		logger:        slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka MessageHandler that dispatches analytics
// events by their type field. Scan and pattern events share one topic,
// so decoding without the envelope would silently misfile them.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var envelope struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(value, &envelope); err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}

		switch envelope.Type {
		case EventPatternCompiled:
			event, err := kafka.DecodeJSON[PatternCompiledEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode compilation event", "error", err)
				return nil
			}
			agg.recordCompiledEvent(event)
		case EventScan, EventCacheHit, EventCacheMiss, EventZeroMatch:
			event, err := kafka.DecodeJSON[ScanEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode scan event", "error", err)
				return nil
			}
			agg.recordScanEvent(event)
		default:
			agg.logger.Warn("unknown analytics event type", "type", string(envelope.Type))
		}
		return nil
	}
}

func (a *Aggregator) recordScanEvent(event ScanEvent) {
	a.totalScans.Add(1)
	a.totalMatches.Add(int64(event.TotalMatches))

	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.TotalMatches == 0 {
		a.zeroMatches.Add(1)
	}

	a.mu.Lock()
	if len(a.latencies) >= maxLatencySamples {
		half := len(a.latencies) / 2
		copy(a.latencies, a.latencies[half:])
		a.latencies = a.latencies[:len(a.latencies)-half]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	if event.TopPatternID != "" {
		a.patternCounts[event.TopPatternID]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) recordCompiledEvent(event PatternCompiledEvent) {
	a.compiled.Add(1)
	if event.Status == "failed" {
		a.failed.Add(1)
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalScans:         a.totalScans.Load(),
		PatternsCompiled:   a.compiled.Load(),
		FailedCompilations: a.failed.Load(),
		CacheHits:          a.cacheHits.Load(),
		CacheMisses:        a.cacheMisses.Load(),
		ZeroMatchCount:     a.zeroMatches.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P90LatencyMs = percentile(sorted, 90)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if stats.TotalScans > 0 {
		stats.AvgMatchesPerScan = float64(a.totalMatches.Load()) / float64(stats.TotalScans)
	}
	stats.TopPatterns = topN(a.patternCounts, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.ScansPerMinute = float64(stats.TotalScans) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []PatternCount {
	result := make([]PatternCount, 0, len(counts))
	for patternID, count := range counts {
		result = append(result, PatternCount{PatternID: patternID, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].PatternID < result[j].PatternID
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
