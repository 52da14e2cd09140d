// Package integration wires real gateway components together: the actual
// router, auth, and rate limiting run against a live PostgreSQL database,
// while the ingestion and scanner upstreams are replaced by stub HTTP
// backends. Every test skips itself when PostgreSQL is unreachable, so the
// package is safe to run anywhere:
//
//	go test -v ./test/integration/...
package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/auth/ratelimit"
	gwhandler "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/postgres"
)

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type gatewayEnv struct {
	srv       *httptest.Server
	validator *apikey.Validator
}

// startGateway builds a gateway whose ingestion and scanner upstreams are
// httptest stubs. The calling test is skipped when PostgreSQL cannot be
// reached.
func startGateway(t *testing.T) *gatewayEnv {
	t.Helper()

	db, err := postgres.New(pgTestConfig())
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ingestion := stubBackend(t, http.StatusAccepted, map[string]any{
		"pattern_id": "00000000-0000-0000-0000-000000000001",
		"status":     "PENDING",
		"shard_id":   0,
	})
	scanner := stubBackend(t, http.StatusOK, map[string]any{
		"token_count":   0,
		"total_matches": 0,
		"matches":       []any{},
	})

	validator := apikey.NewValidator(db)
	limiter := ratelimit.New(time.Minute)
	t.Cleanup(limiter.Close)

	h := gwhandler.New(gwhandler.Config{
		IngestionURL: ingestion.URL,
		ScannerURL:   scanner.URL,
	}, pattern.NewStore(db), validator)

	env := &gatewayEnv{
		srv:       httptest.NewServer(router.New(h, validator, limiter, nil)),
		validator: validator,
	}
	t.Cleanup(env.srv.Close)
	return env
}

// stubBackend stands in for a proxied service, answering every request with
// a fixed status and JSON body.
func stubBackend(t *testing.T, status int, body map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// mintKey issues an API key through the validator directly. The admin
// endpoints require a key themselves, so tests bootstrap this way.
func (e *gatewayEnv) mintKey(t *testing.T, name string, scopes []string, limit int) string {
	t.Helper()
	raw, err := e.validator.CreateKey(t.Context(), name, scopes, limit, nil)
	if err != nil {
		t.Fatalf("minting key %q: %v", name, err)
	}
	return raw
}

// send performs one request against the gateway. An empty body means no
// payload; an empty key omits the X-API-Key header.
func (e *gatewayEnv) send(t *testing.T, method, path, key, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, e.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("building %s %s: %v", method, path, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func pgTestConfig() config.PostgresConfig {
	port := 5432
	if v := os.Getenv("TEST_POSTGRES_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}
	return config.PostgresConfig{
		Host:            env("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        env("TEST_POSTGRES_DB", "quotematch_test"),
		User:            env("TEST_POSTGRES_USER", "quotematch"),
		Password:        env("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthOpenWithoutKey(t *testing.T) {
	gw := startGateway(t)

	resp := gw.send(t, "GET", "/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if got := body["status"]; got != "ok" {
		t.Errorf(`health status = %q, want "ok"`, got)
	}
}

func TestMissingKeyRejected(t *testing.T) {
	gw := startGateway(t)

	for _, ep := range []struct{ method, path string }{
		{"POST", "/api/v1/scan"},
		{"GET", "/api/v1/patterns"},
		{"GET", "/api/v1/analytics"},
	} {
		resp := gw.send(t, ep.method, ep.path, "", "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s without key: status = %d, want 401", ep.method, ep.path, resp.StatusCode)
		}
	}
}

func TestRevokedKeyStopsWorking(t *testing.T) {
	gw := startGateway(t)
	key := gw.mintKey(t, "revoke-me", []string{apikey.ScopeScan}, 100)

	resp := gw.send(t, "POST", "/api/v1/scan", key, `{"text":"hello world"}`)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("scan before revoke: status = %d, want 200 (%s)", resp.StatusCode, b)
	}

	if err := gw.validator.RevokeKey(t.Context(), key); err != nil {
		t.Fatalf("revoking key: %v", err)
	}

	resp = gw.send(t, "POST", "/api/v1/scan", key, `{"text":"hello world"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("scan after revoke: status = %d, want 401", resp.StatusCode)
	}
}

func TestScopesGateEndpoints(t *testing.T) {
	gw := startGateway(t)
	scanKey := gw.mintKey(t, "scan-only", []string{apikey.ScopeScan}, 100)
	registerKey := gw.mintKey(t, "register-only", []string{apikey.ScopeRegister}, 100)

	payload := `{"name":"scoped","text":"a quote used to probe scopes"}`

	resp := gw.send(t, "POST", "/api/v1/patterns", scanKey, payload)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("register with scan-only key: status = %d, want 403", resp.StatusCode)
	}

	resp = gw.send(t, "POST", "/api/v1/patterns", registerKey, payload)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("register with register key: status = %d, want 202", resp.StatusCode)
	}
}

func TestRegisterProxiedToIngestion(t *testing.T) {
	gw := startGateway(t)
	key := gw.mintKey(t, "proxy-check", []string{apikey.ScopeRegister}, 100)

	payload := `{"name":"proxied","text":"a memorable quote","threshold":0.8}`
	resp := gw.send(t, "POST", "/api/v1/patterns", key, payload)
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("register: status = %d, want 202 (%s)", resp.StatusCode, b)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding register response: %v", err)
	}
	if body["status"] != "PENDING" {
		t.Errorf("register response status = %v, want PENDING", body["status"])
	}
}

func TestRateLimitKicksIn(t *testing.T) {
	gw := startGateway(t)
	key := gw.mintKey(t, "two-per-minute", []string{apikey.ScopeScan}, 2)

	for i := range 2 {
		resp := gw.send(t, "POST", "/api/v1/scan", key, `{"text":"probe"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d inside limit: status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	resp := gw.send(t, "POST", "/api/v1/scan", key, `{"text":"probe"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("request over limit: status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}
