package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/merger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
)

type stubExecutor struct {
	result     *executor.ScanResult
	err        error
	calls      int
	lastTokens []string
	lastOpts   executor.Options
}

func (s *stubExecutor) Execute(ctx context.Context, tokens []string, opts executor.Options) (*executor.ScanResult, error) {
	s.calls++
	s.lastTokens = tokens
	s.lastOpts = opts
	return s.result, s.err
}

func testConfig() config.ScanConfig {
	return config.ScanConfig{
		DefaultLimit:    10,
		MaxLimit:        100,
		MaxTextBytes:    1 << 20,
		TimeoutPerShard: time.Second,
	}
}

func matchedResult() *executor.ScanResult {
	return &executor.ScanResult{
		TokenCount:      2,
		PatternsScanned: 3,
		TotalMatches:    1,
		Matches: []merger.PatternMatch{
			{PatternID: "p1", PatternName: "greeting", Position: 1, Score: 1.0},
		},
		ShardsQueried: 2,
	}
}

func postScan(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Scan(rec, req)
	return rec
}

func TestScanSuccess(t *testing.T) {
	stub := &stubExecutor{result: matchedResult()}
	h := New(stub, nil, nil, nil, testConfig())

	rec := postScan(t, h, `{"text":"Hello, World!","limit":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var resp ScanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].PatternID != "p1" {
		t.Errorf("matches = %v, want p1", resp.Matches)
	}
	if resp.Cached {
		t.Error("Cached = true on a direct execution")
	}
	if len(stub.lastTokens) != 2 || stub.lastTokens[0] != "hello" {
		t.Errorf("executor saw tokens %v, want [hello world]", stub.lastTokens)
	}
	if stub.lastOpts.Limit != 5 {
		t.Errorf("executor saw limit %d, want 5", stub.lastOpts.Limit)
	}
}

func TestScanDefaultLimit(t *testing.T) {
	stub := &stubExecutor{result: matchedResult()}
	h := New(stub, nil, nil, nil, testConfig())

	postScan(t, h, `{"text":"hello world"}`)
	if stub.lastOpts.Limit != 10 {
		t.Errorf("executor saw limit %d, want default 10", stub.lastOpts.Limit)
	}
}

func TestScanLimitCappedAtMax(t *testing.T) {
	stub := &stubExecutor{result: matchedResult()}
	h := New(stub, nil, nil, nil, testConfig())

	postScan(t, h, `{"text":"hello world","limit":5000}`)
	if stub.lastOpts.Limit != 100 {
		t.Errorf("executor saw limit %d, want cap 100", stub.lastOpts.Limit)
	}
}

func TestScanRejectsNegativeLimit(t *testing.T) {
	stub := &stubExecutor{result: matchedResult()}
	h := New(stub, nil, nil, nil, testConfig())

	rec := postScan(t, h, `{"text":"hello","limit":-3}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if stub.calls != 0 {
		t.Error("executor called despite invalid limit")
	}
}

func TestScanForwardsPatternFilterAndMinScore(t *testing.T) {
	stub := &stubExecutor{result: matchedResult()}
	h := New(stub, nil, nil, nil, testConfig())

	rec := postScan(t, h, `{"text":"hello world","pattern_ids":["p1","p2"],"min_score":0.7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if got := stub.lastOpts.PatternIDs; len(got) != 2 || got[0] != "p1" || got[1] != "p2" {
		t.Errorf("executor saw pattern IDs %v, want [p1 p2]", got)
	}
	if stub.lastOpts.MinScore != 0.7 {
		t.Errorf("executor saw min score %g, want 0.7", stub.lastOpts.MinScore)
	}
}

func TestScanRejectsMinScoreOutOfRange(t *testing.T) {
	stub := &stubExecutor{result: matchedResult()}
	h := New(stub, nil, nil, nil, testConfig())

	for _, body := range []string{
		`{"text":"hello","min_score":-0.1}`,
		`{"text":"hello","min_score":1.5}`,
	} {
		rec := postScan(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
	if stub.calls != 0 {
		t.Error("executor called despite invalid min_score")
	}
}

func TestScanRequiresText(t *testing.T) {
	stub := &stubExecutor{result: matchedResult()}
	h := New(stub, nil, nil, nil, testConfig())

	for _, body := range []string{`{}`, `{"text":"   "}`} {
		rec := postScan(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
	if stub.calls != 0 {
		t.Error("executor called despite missing text")
	}
}

func TestScanInvalidJSON(t *testing.T) {
	h := New(&stubExecutor{}, nil, nil, nil, testConfig())

	rec := postScan(t, h, `{"text": `)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestScanPunctuationOnlyText(t *testing.T) {
	stub := &stubExecutor{result: matchedResult()}
	h := New(stub, nil, nil, nil, testConfig())

	rec := postScan(t, h, `{"text":"!!! ??? ..."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if stub.calls != 0 {
		t.Error("executor called for a text with no tokens")
	}

	var resp ScanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Matches) != 0 {
		t.Errorf("matches = %v, want none", resp.Matches)
	}
}

func TestScanExecutorError(t *testing.T) {
	stub := &stubExecutor{err: errors.New("all 8 shards failed")}
	h := New(stub, nil, nil, nil, testConfig())

	rec := postScan(t, h, `{"text":"hello world"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "scan failed") {
		t.Errorf("body = %s, want generic failure message", rec.Body)
	}
}

func TestScanBodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTextBytes = 32
	h := New(&stubExecutor{}, nil, nil, nil, cfg)

	rec := postScan(t, h, `{"text":"`+strings.Repeat("lorem ipsum ", 20)+`"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	h := New(&stubExecutor{}, nil, nil, nil, testConfig())

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("CacheStats = %d %s, want disabled report", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("CacheInvalidate = %d, want 503", rec.Code)
	}
}

func TestScanEmitsStageSpans(t *testing.T) {
	stub := &stubExecutor{result: matchedResult()}
	h := New(stub, nil, nil, nil, testConfig())

	// Span trees log at debug level; capture them to verify every scan
	// stage is traced.
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	rec := postScan(t, h, `{"text":"hello world"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	out := buf.String()
	// No cache is wired, so the execute stage stands in for cache.
	for _, stage := range []string{"span=scan", "span=tokenize", "span=execute"} {
		if !strings.Contains(out, stage) {
			t.Errorf("span log output missing %q:\n%s", stage, out)
		}
	}
}

func TestHealth(t *testing.T) {
	h := New(&stubExecutor{}, nil, nil, nil, testConfig())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
