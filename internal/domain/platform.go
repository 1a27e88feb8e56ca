package domain

import (
	"fmt"
	"strings"
)

// Platform identifies a prediction-market venue that produces ticks.
type Platform string

const (
	PlatformKalshi     Platform = "KALSHI"
	PlatformPolymarket Platform = "POLYMARKET"
	PlatformManifold   Platform = "MANIFOLD"
)

// Platforms lists all supported platforms in canonical order. The order is
// load-bearing: spread pair labels and max-spread tie-breaks follow it.
var Platforms = []Platform{PlatformKalshi, PlatformPolymarket, PlatformManifold}

// ParsePlatform normalizes a source string (case-insensitive) to a Platform.
// Unknown sources return ErrUnknownSource.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToUpper(strings.TrimSpace(s))) {
	case PlatformKalshi:
		return PlatformKalshi, nil
	case PlatformPolymarket:
		return PlatformPolymarket, nil
	case PlatformManifold:
		return PlatformManifold, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
}

// Short returns the abbreviated label used in spread pair names
// ("KALSHI-POLY", "POLY-MANIFOLD", ...).
func (p Platform) Short() string {
	if p == PlatformPolymarket {
		return "POLY"
	}
	return string(p)
}

// PairLabel builds the canonical label for a platform pair, e.g.
// "KALSHI-POLY". Callers must pass platforms in canonical order.
func PairLabel(a, b Platform) string {
	return a.Short() + "-" + b.Short()
}
