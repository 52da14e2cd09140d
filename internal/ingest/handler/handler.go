package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/ingest/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/respond"
)

// Registrar accepts validated registration requests. The concrete
// implementation is publisher.Publisher.
type Registrar interface {
	Register(ctx context.Context, req *ingest.RegisterRequest) (*ingest.RegisterResponse, error)
}

// Handler exposes the pattern registration HTTP endpoint.
type Handler struct {
	registrar Registrar
	metrics   *metrics.Metrics
}

// New creates a Handler. metrics may be nil.
func New(reg Registrar, m *metrics.Metrics) *Handler {
	return &Handler{registrar: reg, metrics: m}
}

// Register handles POST /api/v1/patterns. A 202 means the pattern is
// persisted and queued; compilation happens later in a registry worker.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingest.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	if err := validator.ValidateRegisterRequest(&req); err != nil {
		h.countRegistration("rejected")
		rejectInvalid(w, err)
		return
	}

	resp, err := h.registrar.Register(ctx, &req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("pattern registration failed", "error", err, "status_code", status)
		respond.Error(w, status, "registration failed")
		return
	}

	log.Info("pattern accepted",
		"pattern_id", resp.PatternID,
		"shard_id", resp.ShardID,
		"duplicate", resp.Duplicate,
	)
	respond.JSON(w, http.StatusAccepted, resp)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rejectInvalid answers a failed validation. Field-level failures carry
// the per-field breakdown so a client can fix everything in one round.
func rejectInvalid(w http.ResponseWriter, err error) {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		respond.JSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	respond.Error(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) countRegistration(result string) {
	if h.metrics != nil {
		h.metrics.PatternsRegisteredTotal.WithLabelValues(result).Inc()
	}
}
