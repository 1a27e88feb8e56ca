package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// SpreadEvaluator defines what the spread handler requires from the
// evaluator. It is declared locally so the handler package does not depend
// on the concrete implementation.
type SpreadEvaluator interface {
	EvaluateAll() []domain.SpreadResult
	EvaluateByID(id string) (domain.SpreadResult, error)
	Alerts(minThreshold float64) []domain.Alert
}

// SpreadHandler serves spread and alert endpoints.
type SpreadHandler struct {
	evaluator SpreadEvaluator
	logger    *slog.Logger
}

// NewSpreadHandler creates a SpreadHandler.
func NewSpreadHandler(evaluator SpreadEvaluator, logger *slog.Logger) *SpreadHandler {
	return &SpreadHandler{
		evaluator: evaluator,
		logger:    logHandler(logger, "spread"),
	}
}

// ListSpreads returns the current spread for every pair with enough data.
// GET /api/spreads
func (h *SpreadHandler) ListSpreads(w http.ResponseWriter, r *http.Request) {
	results := h.evaluator.EvaluateAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"spreads":   results,
		"count":     len(results),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetSpread returns the spread for a single pair. An unknown pair is 404;
// a known pair without enough cached prices is 503.
// GET /api/spreads/{id}
func (h *SpreadHandler) GetSpread(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	result, err := h.evaluator.EvaluateByID(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "pair not found")
	case errors.Is(err, domain.ErrInsufficientData):
		writeError(w, http.StatusServiceUnavailable, "insufficient price data for pair")
	default:
		h.logger.ErrorContext(r.Context(), "evaluate pair failed",
			slog.String("pair_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to evaluate pair")
	}
}

// ListAlerts returns pairs currently in breach of their alert threshold,
// optionally filtered by a caller-supplied minimum.
// GET /api/alerts?min_threshold=0.05
func (h *SpreadHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	minThreshold := 0.0
	if v := r.URL.Query().Get("min_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, http.StatusBadRequest, "min_threshold must be a non-negative number")
			return
		}
		minThreshold = f
	}

	alerts := h.evaluator.Alerts(minThreshold)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts":    alerts,
		"count":     len(alerts),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
