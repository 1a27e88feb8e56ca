package domain

import "github.com/alanyoungcy/spreadwatch/internal/transform"

// MarketLeg is one platform's side of a linked market pair: the contract ids
// to gather prices for and the transform that reconciles them into a single
// probability.
type MarketLeg struct {
	Contracts []string            `json:"contracts"`
	Transform transform.Transform `json:"transform"`
}

// MarketPair links the same underlying event across platforms. Pairs are
// immutable once loaded; reload replaces the whole set.
type MarketPair struct {
	ID             string                  `json:"id"`
	Description    string                  `json:"description"`
	Legs           map[Platform]*MarketLeg `json:"legs"`
	AlertThreshold float64                 `json:"alert_threshold"`
}

// ConfiguredPlatforms returns the platforms this pair has legs for, in
// canonical order.
func (mp *MarketPair) ConfiguredPlatforms() []Platform {
	var out []Platform
	for _, p := range Platforms {
		if leg, ok := mp.Legs[p]; ok && leg != nil && len(leg.Contracts) > 0 {
			out = append(out, p)
		}
	}
	return out
}
