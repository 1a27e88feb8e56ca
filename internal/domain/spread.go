package domain

import "time"

// SpreadResult is a point-in-time spread analysis for one market pair. It is
// derived, never persisted by the core, and not mutated after construction.
// Probability and per-pair spread fields are nil when the corresponding
// platform had no usable data.
type SpreadResult struct {
	PairID      string `json:"pair_id"`
	Description string `json:"description"`

	KalshiProb   *float64 `json:"kalshi_prob"`
	PolyProb     *float64 `json:"poly_prob"`
	ManifoldProb *float64 `json:"manifold_prob"`

	KalshiPolySpread     *float64 `json:"kalshi_poly_spread"`
	KalshiManifoldSpread *float64 `json:"kalshi_manifold_spread"`
	PolyManifoldSpread   *float64 `json:"poly_manifold_spread"`

	MaxSpread     float64 `json:"max_spread"`
	MaxSpreadPair string  `json:"max_spread_pair"`

	Timestamp        time.Time `json:"timestamp"`
	DataCompleteness float64   `json:"data_completeness"`
}

// Severity tiers an alert by the magnitude of its max spread.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityFor maps a max spread onto its severity band. Bands are fixed,
// non-overlapping percentages of spread: <10 low, [10,15) medium,
// [15,20) high, >=20 critical.
func SeverityFor(maxSpread float64) Severity {
	pct := maxSpread * 100
	switch {
	case pct >= 20:
		return SeverityCritical
	case pct >= 15:
		return SeverityHigh
	case pct >= 10:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Rank orders severities for comparison; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Alert is raised when a spread result's max spread meets or exceeds a
// caller-supplied threshold.
type Alert struct {
	ID        string       `json:"id"`
	Spread    SpreadResult `json:"spread_result"`
	Threshold float64      `json:"threshold"`
	Severity  Severity     `json:"severity"`
	CreatedAt time.Time    `json:"created_at"`
}
