package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/spreadwatch/internal/consumer"
	"github.com/alanyoungcy/spreadwatch/internal/pricecache"
	"github.com/alanyoungcy/spreadwatch/internal/server/ws"
)

// ConsumerStats defines what the stats handler needs from the stream
// consumer.
type ConsumerStats interface {
	Stats() consumer.Stats
	PendingCount(ctx context.Context) (int64, error)
}

// StatsHandler serves the operational stats endpoints.
type StatsHandler struct {
	cache    *pricecache.Cache
	consumer ConsumerStats
	hub      *ws.Hub
	logger   *slog.Logger
}

// NewStatsHandler creates a StatsHandler. hub may be nil when the WebSocket
// layer is disabled.
func NewStatsHandler(cache *pricecache.Cache, cons ConsumerStats, hub *ws.Hub, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		cache:    cache,
		consumer: cons,
		hub:      hub,
		logger:   logHandler(logger, "stats"),
	}
}

// CacheStats returns per-platform contract counts and freshness.
// GET /api/stats/cache
func (h *StatsHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// ConsumerStats returns consumer counters plus the group's pending backlog.
// GET /api/stats/consumer
func (h *StatsHandler) ConsumerStats(w http.ResponseWriter, r *http.Request) {
	stats := h.consumer.Stats()

	pending, err := h.consumer.PendingCount(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "pending count failed",
			slog.String("error", err.Error()),
		)
		pending = -1
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"consumer": stats,
		"pending":  pending,
	})
}

// WSStats returns WebSocket hub counters.
// GET /api/ws/stats
func (h *StatsHandler) WSStats(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusNotImplemented, "websocket hub not running")
		return
	}
	writeJSON(w, http.StatusOK, h.hub.Statistics())
}
