// Package spread computes pairwise spreads between normalized platform
// probabilities and derives alerts from them.
package spread

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/alanyoungcy/spreadwatch/internal/pricecache"
)

// Evaluator derives spread results from the price cache for a configured set
// of market pairs. The pair set is swapped atomically on reload; evaluation
// itself is read-only and safe for concurrent callers.
type Evaluator struct {
	cache  *pricecache.Cache
	pairs  atomic.Pointer[[]domain.MarketPair]
	logger *slog.Logger
}

// New creates an Evaluator over the given cache with no pairs configured.
// An empty pair set degrades every bulk call to an empty result, not an
// error.
func New(cache *pricecache.Cache, logger *slog.Logger) *Evaluator {
	e := &Evaluator{
		cache:  cache,
		logger: logger.With(slog.String("component", "evaluator")),
	}
	empty := []domain.MarketPair{}
	e.pairs.Store(&empty)
	return e
}

// SetPairs replaces the whole configured pair set.
func (e *Evaluator) SetPairs(pairs []domain.MarketPair) {
	if pairs == nil {
		pairs = []domain.MarketPair{}
	}
	e.pairs.Store(&pairs)
	e.logger.Info("market pairs configured", slog.Int("count", len(pairs)))
}

// Pairs returns the currently configured pair set.
func (e *Evaluator) Pairs() []domain.MarketPair {
	return *e.pairs.Load()
}

// Pair looks up a configured pair by id.
func (e *Evaluator) Pair(id string) (domain.MarketPair, bool) {
	for _, p := range e.Pairs() {
		if p.ID == id {
			return p, true
		}
	}
	return domain.MarketPair{}, false
}

// Evaluate computes the spread result for one pair. ok is false when fewer
// than two platforms produce a probability; that absence is typed, and
// callers must not alert or store on it.
func (e *Evaluator) Evaluate(pair *domain.MarketPair) (domain.SpreadResult, bool) {
	configured := pair.ConfiguredPlatforms()
	if len(configured) == 0 {
		return domain.SpreadResult{}, false
	}

	probs := make(map[domain.Platform]float64, len(configured))
	for _, p := range configured {
		if prob, ok := e.cache.NormalizedProb(p, pair); ok {
			probs[p] = prob
		}
	}

	if len(probs) < 2 {
		return domain.SpreadResult{}, false
	}

	result := domain.SpreadResult{
		PairID:           pair.ID,
		Description:      pair.Description,
		Timestamp:        time.Now().UTC(),
		DataCompleteness: float64(len(probs)) / float64(len(configured)),
	}
	for p, prob := range probs {
		setProb(&result, p, prob)
	}

	// Pairwise spreads over available platforms, in canonical order. The
	// first pair at the maximum wins ties.
	first := true
	for i := 0; i < len(domain.Platforms); i++ {
		for j := i + 1; j < len(domain.Platforms); j++ {
			a, b := domain.Platforms[i], domain.Platforms[j]
			pa, okA := probs[a]
			pb, okB := probs[b]
			if !okA || !okB {
				continue
			}
			s := pa - pb
			if s < 0 {
				s = -s
			}
			setSpread(&result, a, b, s)
			if first || s > result.MaxSpread {
				result.MaxSpread = s
				result.MaxSpreadPair = domain.PairLabel(a, b)
				first = false
			}
		}
	}

	return result, true
}

// EvaluateByID evaluates a single configured pair, distinguishing an unknown
// pair (domain.ErrNotFound) from a known pair without enough data
// (domain.ErrInsufficientData).
func (e *Evaluator) EvaluateByID(id string) (domain.SpreadResult, error) {
	pair, ok := e.Pair(id)
	if !ok {
		return domain.SpreadResult{}, fmt.Errorf("spread: pair %q: %w", id, domain.ErrNotFound)
	}
	result, ok := e.Evaluate(&pair)
	if !ok {
		return domain.SpreadResult{}, fmt.Errorf("spread: pair %q: %w", id, domain.ErrInsufficientData)
	}
	return result, nil
}

// EvaluateAll evaluates every configured pair. Pairs with insufficient data
// are silently dropped; the absence is only surfaced by per-id lookups.
func (e *Evaluator) EvaluateAll() []domain.SpreadResult {
	pairs := e.Pairs()
	results := make([]domain.SpreadResult, 0, len(pairs))
	for i := range pairs {
		if result, ok := e.Evaluate(&pairs[i]); ok {
			results = append(results, result)
		}
	}
	return results
}

// AlertFrom derives an alert when the result's max spread reaches threshold.
// The severity tier depends only on the spread magnitude, not the threshold.
func AlertFrom(result domain.SpreadResult, threshold float64) (domain.Alert, bool) {
	if result.MaxSpread < threshold {
		return domain.Alert{}, false
	}
	return domain.Alert{
		ID:        uuid.NewString(),
		Spread:    result,
		Threshold: threshold,
		Severity:  domain.SeverityFor(result.MaxSpread),
		CreatedAt: time.Now().UTC(),
	}, true
}

// Alerts evaluates all pairs and returns alerts for those whose max spread
// exceeds their own configured alert threshold and reaches minThreshold.
func (e *Evaluator) Alerts(minThreshold float64) []domain.Alert {
	var alerts []domain.Alert
	for _, pair := range e.Pairs() {
		result, ok := e.Evaluate(&pair)
		if !ok {
			continue
		}
		if result.MaxSpread <= pair.AlertThreshold {
			continue
		}
		if alert, ok := AlertFrom(result, minThreshold); ok {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

func setProb(r *domain.SpreadResult, p domain.Platform, prob float64) {
	v := prob
	switch p {
	case domain.PlatformKalshi:
		r.KalshiProb = &v
	case domain.PlatformPolymarket:
		r.PolyProb = &v
	case domain.PlatformManifold:
		r.ManifoldProb = &v
	}
}

func setSpread(r *domain.SpreadResult, a, b domain.Platform, s float64) {
	v := s
	switch {
	case a == domain.PlatformKalshi && b == domain.PlatformPolymarket:
		r.KalshiPolySpread = &v
	case a == domain.PlatformKalshi && b == domain.PlatformManifold:
		r.KalshiManifoldSpread = &v
	case a == domain.PlatformPolymarket && b == domain.PlatformManifold:
		r.PolyManifoldSpread = &v
	}
}
