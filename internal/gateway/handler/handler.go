// Package handler implements the API gateway's HTTP endpoints: reverse
// proxies to the backend services, direct pattern reads from PostgreSQL,
// and admin operations (API key management, registry control over RPC).
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/pattern"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/respond"
)

// Config holds the addresses of backend services the gateway talks to.
type Config struct {
	IngestionURL    string
	ScannerURL      string
	AnalyticsURL    string
	RegistryRPCAddr string
}

// Handler carries the proxies and stores behind the gateway's routes.
type Handler struct {
	registerProxy  *httputil.ReverseProxy
	scanProxy      *httputil.ReverseProxy
	analyticsProxy *httputil.ReverseProxy
	patterns       *pattern.Store
	keyValidator   *apikey.Validator
	registry       *registryClient
	logger         *slog.Logger
}

// New creates a gateway Handler that proxies to the given backends and
// reads patterns directly from the store.
func New(cfg Config, patterns *pattern.Store, keyValidator *apikey.Validator) *Handler {
	h := &Handler{
		patterns:     patterns,
		keyValidator: keyValidator,
		registry:     &registryClient{addr: cfg.RegistryRPCAddr},
		logger:       slog.Default().With("component", "gateway-handler"),
	}
	h.registerProxy = h.newProxy(cfg.IngestionURL, "ingestion")
	h.scanProxy = h.newProxy(cfg.ScannerURL, "scanner")
	h.analyticsProxy = h.newProxy(cfg.AnalyticsURL, "analytics")
	return h
}

func (h *Handler) newProxy(target, name string) *httputil.ReverseProxy {
	u, _ := url.Parse(target)
	p := httputil.NewSingleHostReverseProxy(u)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.logger.Error("proxy error", "backend", name, "path", r.URL.Path, "error", err)
		respond.Error(w, http.StatusBadGateway, name+" service unavailable")
	}
	return p
}

// ---------- Proxy handlers ----------

// ProxyRegister forwards pattern registrations to the ingestion service.
func (h *Handler) ProxyRegister(w http.ResponseWriter, r *http.Request) {
	h.registerProxy.ServeHTTP(w, r)
}

// ProxyScan forwards scan requests to the scanner service.
func (h *Handler) ProxyScan(w http.ResponseWriter, r *http.Request) {
	h.scanProxy.ServeHTTP(w, r)
}

// ProxyAnalytics forwards analytics requests to the analytics service.
func (h *Handler) ProxyAnalytics(w http.ResponseWriter, r *http.Request) {
	h.analyticsProxy.ServeHTTP(w, r)
}

// ProxyCacheStats forwards cache stats requests to the scanner service.
func (h *Handler) ProxyCacheStats(w http.ResponseWriter, r *http.Request) {
	h.scanProxy.ServeHTTP(w, r)
}

// ProxyCacheInvalidate forwards cache invalidation to the scanner service.
func (h *Handler) ProxyCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	h.scanProxy.ServeHTTP(w, r)
}

// ---------- Direct data handlers ----------

// GetPattern retrieves a single registered pattern from PostgreSQL.
func (h *Handler) GetPattern(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respond.Error(w, http.StatusBadRequest, "pattern id is required")
		return
	}

	rec, err := h.patterns.GetByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "failed to fetch pattern")
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}

// ListPatterns returns a page of registered patterns, newest first.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	records, total, err := h.patterns.List(r.Context(), limit, offset)
	if err != nil {
		h.writeStoreError(w, err, "failed to list patterns")
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"patterns": records,
		"count":    len(records),
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// ---------- Admin handlers ----------

// CreateAPIKey mints an API key. The raw key appears only in this
// response; the store keeps just its hash.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string   `json:"name"`
		Scopes    []string `json:"scopes"`
		RateLimit int      `json:"rate_limit"`
		ExpiresIn string   `json:"expires_in,omitempty"` // Go duration, e.g. "720h"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		respond.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	for _, scope := range req.Scopes {
		switch scope {
		case apikey.ScopeScan, apikey.ScopeRegister, apikey.ScopeAdmin:
		default:
			respond.Error(w, http.StatusBadRequest, "unknown scope: "+scope)
			return
		}
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 100
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "invalid expires_in duration")
			return
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	key, err := h.keyValidator.CreateKey(r.Context(), req.Name, req.Scopes, req.RateLimit, expiresAt)
	if err != nil {
		h.logger.Error("failed to create api key", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to create api key")
		return
	}

	respond.JSON(w, http.StatusCreated, map[string]string{
		"api_key": key,
		"name":    req.Name,
		"message": "store this key securely, it cannot be retrieved again",
	})
}

// ListAPIKeys returns every active key's metadata, never the hashes.
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keyValidator.ListKeys(r.Context())
	if err != nil {
		h.logger.Error("failed to list api keys", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// RegistryStats reports live pattern counts from the registry service.
// An optional ?shard query parameter restricts the report to one shard.
func (h *Handler) RegistryStats(w http.ResponseWriter, r *http.Request) {
	shard := proto.AllShards
	if v := r.URL.Query().Get("shard"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			respond.Error(w, http.StatusBadRequest, "shard must be a non-negative integer")
			return
		}
		shard = int32(parsed)
	}

	var resp proto.RegistryStatsResponse
	if err := h.registry.call("RegistryService.Stats", &proto.RegistryStatsRequest{ShardID: shard}, &resp); err != nil {
		h.logger.Error("registry stats rpc failed", "error", err)
		respond.Error(w, http.StatusBadGateway, "registry service unavailable")
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// RegistrySnapshot asks the registry service to flush compiled patterns to
// disk. The optional JSON body may carry a shard_id; the default flushes
// every shard.
func (h *Handler) RegistrySnapshot(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ShardID *int32 `json:"shard_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := proto.SnapshotRequest{ShardID: proto.AllShards}
	if body.ShardID != nil {
		req.ShardID = *body.ShardID
	}

	var resp proto.SnapshotResponse
	if err := h.registry.call("RegistryService.Snapshot", &req, &resp); err != nil {
		h.logger.Error("registry snapshot rpc failed", "error", err)
		respond.Error(w, http.StatusBadGateway, "registry service unavailable")
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// ---------- Health ----------

// Health answers the gateway's own probe. Backend health is each
// service's business; the gateway does not fan out to them here.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "gateway"})
}

// ---------- Registry RPC client ----------

// registryClient lazily dials the registry RPC server and drops the
// connection after a failed call, so a registry restart does not wedge
// the gateway. Admin traffic is rare enough that redialing is cheaper
// than classifying errors.
type registryClient struct {
	addr   string
	mu     sync.Mutex
	client *grpc.Client
}

func (rc *registryClient) call(method string, params, result any) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.client == nil {
		c, err := grpc.Dial(rc.addr)
		if err != nil {
			return err
		}
		rc.client = c
	}

	if err := rc.client.Call(method, params, result); err != nil {
		rc.client.Close()
		rc.client = nil
		return err
	}
	return nil
}

// ---------- Helpers ----------

// writeStoreError surfaces app errors with their own status and message;
// anything else gets logged and masked behind the fallback.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error, fallback string) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		respond.Error(w, appErr.StatusCode, appErr.Message)
		return
	}
	h.logger.Error(fallback, "error", err)
	respond.Error(w, http.StatusInternalServerError, fallback)
}
