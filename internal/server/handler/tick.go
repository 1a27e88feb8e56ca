package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// TickHandler serves the tick log endpoints, reading the stream directly
// rather than the consumer's cache so acked entries remain visible.
type TickHandler struct {
	bus    domain.TickBus
	logger *slog.Logger
}

// NewTickHandler creates a TickHandler.
func NewTickHandler(bus domain.TickBus, logger *slog.Logger) *TickHandler {
	return &TickHandler{
		bus:    bus,
		logger: logHandler(logger, "tick"),
	}
}

// tickEntry is one decoded stream entry in the list response.
type tickEntry struct {
	EntryID string      `json:"entry_id"`
	Tick    domain.Tick `json:"tick"`
}

// ListTicks returns the newest entries from the tick stream, newest first.
// Entries that fail to decode are skipped, not errors.
// GET /api/ticks?limit=50
func (h *TickHandler) ListTicks(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	entries, err := h.bus.StreamRevRangeN(r.Context(), domain.TickStream, int64(limit))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stream range failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read tick stream")
		return
	}

	ticks := make([]tickEntry, 0, len(entries))
	for _, entry := range entries {
		tick, err := domain.DecodeTick(entry.Payload)
		if err != nil {
			continue
		}
		ticks = append(ticks, tickEntry{EntryID: entry.ID, Tick: tick})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticks": ticks,
		"count": len(ticks),
		"limit": limit,
	})
}

// debugPriceRequest is the body for the manual price injection endpoint.
type debugPriceRequest struct {
	Source     string  `json:"source"`
	ContractID string  `json:"contract_id"`
	Price      float64 `json:"price"`
}

// DebugPrice injects a synthetic tick into the stream and the trigger
// channel, exactly as an ingestor would, so the full pipeline runs against
// it. Intended for operational testing.
// POST /api/debug/price
func (h *TickHandler) DebugPrice(w http.ResponseWriter, r *http.Request) {
	var req debugPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	now := time.Now().UnixMilli()
	tick := domain.Tick{
		Source:     req.Source,
		ContractID: req.ContractID,
		Price:      req.Price,
		TsSource:   now,
		TsIngest:   now,
	}
	if err := tick.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := domain.EncodeTick(tick)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "tick encode failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to encode tick")
		return
	}

	if err := h.bus.StreamAppend(r.Context(), domain.TickStream, payload); err != nil {
		h.logger.ErrorContext(r.Context(), "stream append failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to append tick")
		return
	}
	if err := h.bus.Publish(r.Context(), domain.TickChannel(tick.ContractID), payload); err != nil {
		h.logger.WarnContext(r.Context(), "tick publish failed",
			slog.String("error", err.Error()),
		)
	}

	h.logger.InfoContext(r.Context(), "debug tick injected",
		slog.String("source", tick.Source),
		slog.String("contract_id", tick.ContractID),
		slog.Float64("price", tick.Price),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"tick":   tick,
	})
}
