package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/merger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/tokenize"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/respond"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/tracing"
)

// ScanRequest is the JSON body accepted by the scan endpoint. Limit
// caps the number of returned matches; zero means the service default.
// PatternIDs restricts the scan to the named patterns, and MinScore
// drops matches below it on top of each pattern's own threshold.
type ScanRequest struct {
	Text       string   `json:"text"`
	Limit      int      `json:"limit"`
	PatternIDs []string `json:"pattern_ids"`
	MinScore   float64  `json:"min_score"`
}

// ScanResponse wraps the scan result with per-request fields that must
// not enter the cache.
type ScanResponse struct {
	*executor.ScanResult
	RequestID  string `json:"request_id,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Cached     bool   `json:"cached"`
}

// ScanExecutor abstracts the sharded executor for testing.
type ScanExecutor interface {
	Execute(ctx context.Context, tokens []string, opts executor.Options) (*executor.ScanResult, error)
}

type Handler struct {
	executor     ScanExecutor
	cache        *cache.ScanCache
	collector    *collector.BatchCollector
	metrics      *metrics.Metrics
	defaultLimit int
	maxLimit     int
	maxTextBytes int64
	logger       *slog.Logger
}

func New(exec ScanExecutor, scanCache *cache.ScanCache, events *collector.BatchCollector, m *metrics.Metrics, cfg config.ScanConfig) *Handler {
	return &Handler{
		executor:     exec,
		cache:        scanCache,
		collector:    events,
		metrics:      m,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		maxTextBytes: int64(cfg.MaxTextBytes),
		logger:       slog.Default().With("component", "scan-handler"),
	}
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxTextBytes)
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			return
		}
		respond.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respond.Error(w, http.StatusBadRequest, "field 'text' is required")
		return
	}

	limit := h.defaultLimit
	if req.Limit != 0 {
		if req.Limit < 1 {
			respond.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = req.Limit
		if limit > h.maxLimit {
			limit = h.maxLimit
		}
	}
	if req.MinScore < 0.0 || req.MinScore > 1.0 {
		respond.Error(w, http.StatusBadRequest, "min_score must be between 0.0 and 1.0")
		return
	}
	opts := executor.Options{
		Limit:      limit,
		PatternIDs: req.PatternIDs,
		MinScore:   req.MinScore,
	}

	requestID := middleware.GetRequestID(ctx)
	ctx, span := tracing.StartSpan(ctx, "scan", requestID)

	_, tokSpan := tracing.StartChildSpan(ctx, "tokenize")
	tokens := tokenize.Words(req.Text)
	tokSpan.SetAttr("token_count", len(tokens))
	tokSpan.End()
	span.SetAttr("token_count", len(tokens))
	if len(tokens) == 0 {
		span.End()
		respond.JSON(w, http.StatusOK, &ScanResponse{
			ScanResult: &executor.ScanResult{Matches: []merger.PatternMatch{}},
			RequestID:  requestID,
		})
		return
	}

	var result *executor.ScanResult
	var err error
	cacheHit := false

	if h.cache != nil {
		cacheCtx, cacheSpan := tracing.StartChildSpan(ctx, "cache")
		result, cacheHit, err = h.cache.GetOrCompute(cacheCtx, req.Text, opts, func() (*executor.ScanResult, error) {
			return h.executor.Execute(cacheCtx, tokens, opts)
		})
		cacheSpan.SetAttr("hit", cacheHit)
		cacheSpan.End()
	} else {
		execCtx, execSpan := tracing.StartChildSpan(ctx, "execute")
		result, err = h.executor.Execute(execCtx, tokens, opts)
		execSpan.End()
	}

	if err != nil {
		log.Error("scan execution failed", "tokens", len(tokens), "error", err)
		h.countScan("error")
		respond.Error(w, http.StatusInternalServerError, "scan failed")
		return
	}

	durationMs := time.Since(start).Milliseconds()
	h.recordScan(result, cacheHit, time.Since(start))

	log.Info("scan completed",
		"tokens", len(tokens),
		"total_matches", result.TotalMatches,
		"returned", len(result.Matches),
		"cache_hit", cacheHit,
		"latency_ms", durationMs,
	)
	span.SetAttr("total_matches", result.TotalMatches)
	span.SetAttr("cache_hit", cacheHit)
	span.End()
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		span.Log()
	}

	h.trackScan(result, cacheHit, durationMs, requestID)

	respond.JSON(w, http.StatusOK, &ScanResponse{
		ScanResult: result,
		RequestID:  requestID,
		DurationMs: durationMs,
		Cached:     cacheHit,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"hits":          hits,
		"misses":        misses,
		"total":         total,
		"hit_rate":      fmt.Sprintf("%.1f%%", hitRate),
		"breaker_state": h.cache.BreakerState(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		respond.Error(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	respond.JSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// trackScan emits the analytics event for a completed scan.
func (h *Handler) trackScan(result *executor.ScanResult, cacheHit bool, durationMs int64, requestID string) {
	if h.collector == nil {
		return
	}

	eventType := analytics.EventCacheMiss
	if cacheHit {
		eventType = analytics.EventCacheHit
	}
	if result.TotalMatches == 0 {
		eventType = analytics.EventZeroMatch
	}

	event := analytics.ScanEvent{
		Type:            eventType,
		RequestID:       requestID,
		TokenCount:      result.TokenCount,
		PatternsScanned: result.PatternsScanned,
		TotalMatches:    result.TotalMatches,
		Returned:        len(result.Matches),
		LatencyMs:       durationMs,
		CacheHit:        cacheHit,
		ShardCount:      result.ShardsQueried,
		Timestamp:       time.Now().UTC(),
	}
	if len(result.Matches) > 0 {
		event.TopScore = result.Matches[0].Score
		event.TopPatternID = result.Matches[0].PatternID
	}
	h.collector.Track(requestID, event)
}

func (h *Handler) recordScan(result *executor.ScanResult, cacheHit bool, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	resultType := "matched"
	if result.TotalMatches == 0 {
		resultType = "zero_match"
	}
	h.metrics.ScansTotal.WithLabelValues(resultType).Inc()

	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	h.metrics.ScanLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	h.metrics.ScanMatchesCount.Observe(float64(result.TotalMatches))
}

func (h *Handler) countScan(resultType string) {
	if h.metrics == nil {
		return
	}
	h.metrics.ScansTotal.WithLabelValues(resultType).Inc()
}
