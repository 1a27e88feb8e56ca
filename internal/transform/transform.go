// Package transform reconciles raw per-contract prices from differently
// shaped markets into a single comparable probability. All functions are
// pure: no state, no I/O.
package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks an empty price list or a price outside [0,1].
	ErrInvalidInput = errors.New("invalid transform input")

	// ErrMissingParameter marks a strategy referenced without the parameter
	// its variant requires (threshold or weights).
	ErrMissingParameter = errors.New("missing transform parameter")

	// ErrLengthMismatch marks a weights list whose length differs from the
	// price list.
	ErrLengthMismatch = errors.New("weights length mismatch")

	// ErrDegenerateWeights marks a weights list that sums to zero.
	ErrDegenerateWeights = errors.New("degenerate weights")
)

// Kind enumerates the closed set of transform strategies.
type Kind string

const (
	KindIdentity    Kind = "identity"
	KindSum         Kind = "sum"
	KindInverse     Kind = "inverse"
	KindSumGT       Kind = "sum_gt"
	KindSumLT       Kind = "sum_lt"
	KindWeightedAvg Kind = "weighted_avg"
)

// Transform is a tagged variant: a strategy kind together with the
// parameters that kind requires. Use the constructors below so that
// parameter presence is guaranteed at construction rather than checked at
// application time.
type Transform struct {
	Kind      Kind      `json:"kind"`
	Threshold float64   `json:"threshold,omitempty"`
	Weights   []float64 `json:"weights,omitempty"`
}

// Identity passes the single input price through unchanged.
func Identity() Transform { return Transform{Kind: KindIdentity} }

// Sum adds all input prices, capping the result at 1.0. Used when several
// contracts partition one outcome.
func Sum() Transform { return Transform{Kind: KindSum} }

// Inverse flips the single input price (1 - p), matching YES against NO.
func Inverse() Transform { return Transform{Kind: KindInverse} }

// SumGT sums only the inputs strictly greater than threshold.
func SumGT(threshold float64) Transform {
	return Transform{Kind: KindSumGT, Threshold: threshold}
}

// SumLT sums only the inputs strictly less than threshold.
func SumLT(threshold float64) Transform {
	return Transform{Kind: KindSumLT, Threshold: threshold}
}

// WeightedAvg computes the weighted mean of the inputs.
func WeightedAvg(weights []float64) Transform {
	return Transform{Kind: KindWeightedAvg, Weights: weights}
}

// Parse builds a Transform from its configured string form plus optional
// parameters. It enforces each variant's mandatory parameters, returning
// ErrMissingParameter when they are absent.
func Parse(kind string, threshold *float64, weights []float64) (Transform, error) {
	switch Kind(kind) {
	case KindIdentity, "":
		return Identity(), nil
	case KindSum:
		return Sum(), nil
	case KindInverse:
		return Inverse(), nil
	case KindSumGT:
		if threshold == nil {
			return Transform{}, fmt.Errorf("%w: %s requires threshold", ErrMissingParameter, KindSumGT)
		}
		return SumGT(*threshold), nil
	case KindSumLT:
		if threshold == nil {
			return Transform{}, fmt.Errorf("%w: %s requires threshold", ErrMissingParameter, KindSumLT)
		}
		return SumLT(*threshold), nil
	case KindWeightedAvg:
		if len(weights) == 0 {
			return Transform{}, fmt.Errorf("%w: %s requires weights", ErrMissingParameter, KindWeightedAvg)
		}
		return WeightedAvg(weights), nil
	default:
		return Transform{}, fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, kind)
	}
}

// Apply runs the transform over the given prices and returns the reconciled
// probability. Every price must lie in [0,1] and the list must be non-empty;
// identity and inverse additionally require exactly one input. No strategy
// clamps its inputs; only sum caps its output.
func (t Transform) Apply(prices []float64) (float64, error) {
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: empty price list", ErrInvalidInput)
	}
	for _, p := range prices {
		if p < 0 || p > 1 {
			return 0, fmt.Errorf("%w: price %v outside [0,1]", ErrInvalidInput, p)
		}
	}

	switch t.Kind {
	case KindIdentity:
		if len(prices) != 1 {
			return 0, fmt.Errorf("%w: identity takes exactly one price, got %d", ErrInvalidInput, len(prices))
		}
		return prices[0], nil

	case KindSum:
		var sum float64
		for _, p := range prices {
			sum += p
		}
		// Reconciled probability cannot exceed certainty even when the
		// constituent contracts overlap or are stale.
		return min(sum, 1.0), nil

	case KindInverse:
		if len(prices) != 1 {
			return 0, fmt.Errorf("%w: inverse takes exactly one price, got %d", ErrInvalidInput, len(prices))
		}
		return 1.0 - prices[0], nil

	case KindSumGT:
		// The threshold is compared against the price values themselves, not
		// range metadata. Callers own the semantic validity of that domain.
		var sum float64
		for _, p := range prices {
			if p > t.Threshold {
				sum += p
			}
		}
		return sum, nil

	case KindSumLT:
		var sum float64
		for _, p := range prices {
			if p < t.Threshold {
				sum += p
			}
		}
		return sum, nil

	case KindWeightedAvg:
		if len(t.Weights) == 0 {
			return 0, fmt.Errorf("%w: weighted_avg requires weights", ErrMissingParameter)
		}
		if len(t.Weights) != len(prices) {
			return 0, fmt.Errorf("%w: %d weights for %d prices", ErrLengthMismatch, len(t.Weights), len(prices))
		}
		var sum, totalWeight float64
		for i, p := range prices {
			sum += p * t.Weights[i]
			totalWeight += t.Weights[i]
		}
		if totalWeight == 0 {
			return 0, fmt.Errorf("%w: weight sum is zero", ErrDegenerateWeights)
		}
		return sum / totalWeight, nil

	default:
		return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, t.Kind)
	}
}
