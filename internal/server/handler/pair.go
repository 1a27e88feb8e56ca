package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// PairSource exposes the currently active pair set.
type PairSource interface {
	Pairs() []domain.MarketPair
}

// PairReloader re-reads the pair definitions from disk and swaps them in,
// returning the number of pairs now active.
type PairReloader func() (int, error)

// PairHandler serves the pair configuration endpoints.
type PairHandler struct {
	source PairSource
	reload PairReloader
	logger *slog.Logger
}

// NewPairHandler creates a PairHandler. reload may be nil when the pair set
// is fixed for the process lifetime.
func NewPairHandler(source PairSource, reload PairReloader, logger *slog.Logger) *PairHandler {
	return &PairHandler{
		source: source,
		reload: reload,
		logger: logHandler(logger, "pair"),
	}
}

// pairSummary is the list-endpoint projection of a pair: configuration
// only, no live prices.
type pairSummary struct {
	ID             string            `json:"id"`
	Description    string            `json:"description"`
	Platforms      []string          `json:"platforms"`
	Transforms     map[string]string `json:"transforms"`
	AlertThreshold float64           `json:"alert_threshold"`
}

// ListPairs returns the active pair configuration.
// GET /api/pairs
func (h *PairHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	pairs := h.source.Pairs()

	summaries := make([]pairSummary, 0, len(pairs))
	for i := range pairs {
		pair := &pairs[i]
		platforms := pair.ConfiguredPlatforms()

		names := make([]string, 0, len(platforms))
		transforms := make(map[string]string, len(platforms))
		for _, p := range platforms {
			names = append(names, string(p))
			transforms[string(p)] = string(pair.Legs[p].Transform.Kind)
		}

		summaries = append(summaries, pairSummary{
			ID:             pair.ID,
			Description:    pair.Description,
			Platforms:      names,
			Transforms:     transforms,
			AlertThreshold: pair.AlertThreshold,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pairs": summaries,
		"count": len(summaries),
	})
}

// ReloadPairs re-reads pair definitions from disk and swaps them in without
// a restart. The previous set stays active if the reload fails.
// POST /api/pairs/reload
func (h *PairHandler) ReloadPairs(w http.ResponseWriter, r *http.Request) {
	if h.reload == nil {
		writeError(w, http.StatusNotImplemented, "pair reload not available")
		return
	}

	count, err := h.reload()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "pair reload failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to reload pairs")
		return
	}

	h.logger.InfoContext(r.Context(), "pairs reloaded", slog.Int("count", count))
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"count":  count,
	})
}
