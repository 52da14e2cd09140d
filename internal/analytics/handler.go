package analytics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/respond"
)

// SnapshotSource serves historical stats snapshots. Implemented by the
// aggregator persistence store; nil when persistence is disabled.
type SnapshotSource interface {
	ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error)
}

// Handler serves the aggregator's live counters and, when persistence
// is on, the snapshot history behind them.
type Handler struct {
	aggregator *Aggregator
	history    SnapshotSource
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator, history SnapshotSource) *Handler {
	return &Handler{
		aggregator: aggregator,
		history:    history,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats reports the counters accumulated since startup, or since the
// snapshot the aggregator resumed from.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.aggregator.Stats())
}

// History returns up to ?limit persisted snapshots, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	limit := 24
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			respond.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	snapshots, err := h.history.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load snapshot history", "error", err)
		respond.Error(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	// An empty history still serializes as a JSON array.
	if snapshots == nil {
		snapshots = []AggregatedStats{}
	}
	respond.JSON(w, http.StatusOK, snapshots)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
