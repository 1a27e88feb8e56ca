package spread

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/alanyoungcy/spreadwatch/internal/pricecache"
	"github.com/alanyoungcy/spreadwatch/internal/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func kalshiPolyPair(id string, alertThreshold float64) domain.MarketPair {
	return domain.MarketPair{
		ID:          id,
		Description: "test pair",
		Legs: map[domain.Platform]*domain.MarketLeg{
			domain.PlatformKalshi: {
				Contracts: []string{"K1"},
				Transform: transform.Identity(),
			},
			domain.PlatformPolymarket: {
				Contracts: []string{"P1"},
				Transform: transform.Identity(),
			},
		},
		AlertThreshold: alertThreshold,
	}
}

func TestEvaluateInsufficientData(t *testing.T) {
	cache := pricecache.New()
	_ = cache.Update("KALSHI", "K1", 0.55)
	// POLYMARKET leg configured but never cached.

	e := New(cache, testLogger())
	pair := kalshiPolyPair("p1", 0.05)

	if _, ok := e.Evaluate(&pair); ok {
		t.Error("Evaluate() with one of two platforms should be insufficient")
	}
}

func TestEvaluateTwoPlatforms(t *testing.T) {
	cache := pricecache.New()
	_ = cache.Update("KALSHI", "K1", 0.55)
	_ = cache.Update("POLYMARKET", "P1", 0.58)

	e := New(cache, testLogger())
	pair := kalshiPolyPair("p1", 0.05)

	result, ok := e.Evaluate(&pair)
	if !ok {
		t.Fatal("Evaluate() insufficient, want result")
	}
	if result.KalshiPolySpread == nil || math.Abs(*result.KalshiPolySpread-0.03) > 1e-9 {
		t.Errorf("kalshi-poly spread = %v, want 0.03", result.KalshiPolySpread)
	}
	if math.Abs(result.MaxSpread-0.03) > 1e-9 {
		t.Errorf("MaxSpread = %v, want 0.03", result.MaxSpread)
	}
	if result.MaxSpreadPair != "KALSHI-POLY" {
		t.Errorf("MaxSpreadPair = %q, want KALSHI-POLY", result.MaxSpreadPair)
	}
	if result.DataCompleteness != 1.0 {
		t.Errorf("DataCompleteness = %v, want 1.0", result.DataCompleteness)
	}
	if result.ManifoldProb != nil {
		t.Error("ManifoldProb should be nil for an unconfigured platform")
	}
}

func TestEvaluateMaxSpreadTieBreak(t *testing.T) {
	cache := pricecache.New()
	_ = cache.Update("KALSHI", "K1", 0.50)
	_ = cache.Update("POLYMARKET", "P1", 0.60)
	_ = cache.Update("MANIFOLD", "M1", 0.40)

	pair := kalshiPolyPair("p1", 0.05)
	pair.Legs[domain.PlatformManifold] = &domain.MarketLeg{
		Contracts: []string{"M1"},
		Transform: transform.Identity(),
	}

	e := New(cache, testLogger())
	result, ok := e.Evaluate(&pair)
	if !ok {
		t.Fatal("Evaluate() insufficient, want result")
	}

	// POLY-MANIFOLD has the strictly largest spread (0.20).
	if result.MaxSpreadPair != "POLY-MANIFOLD" {
		t.Errorf("MaxSpreadPair = %q, want POLY-MANIFOLD", result.MaxSpreadPair)
	}
	if math.Abs(result.MaxSpread-0.20) > 1e-9 {
		t.Errorf("MaxSpread = %v, want 0.20", result.MaxSpread)
	}

	// Tie between KALSHI-POLY (|0.5-0.6|) and KALSHI-MANIFOLD (|0.5-0.4|):
	// the first pair in canonical ordering wins.
	_ = cache.Update("POLYMARKET", "P1", 0.60)
	_ = cache.Update("MANIFOLD", "M1", 0.60)
	result, _ = e.Evaluate(&pair)
	if result.MaxSpreadPair != "KALSHI-POLY" {
		t.Errorf("tie-break MaxSpreadPair = %q, want KALSHI-POLY", result.MaxSpreadPair)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	cache := pricecache.New()
	_ = cache.Update("KALSHI", "K1", 0.55)
	_ = cache.Update("POLYMARKET", "P1", 0.58)

	e := New(cache, testLogger())
	pair := kalshiPolyPair("p1", 0.05)

	r1, _ := e.Evaluate(&pair)
	r2, _ := e.Evaluate(&pair)

	if *r1.KalshiProb != *r2.KalshiProb || *r1.PolyProb != *r2.PolyProb {
		t.Error("repeated Evaluate() changed probabilities")
	}
	if r1.MaxSpread != r2.MaxSpread || r1.MaxSpreadPair != r2.MaxSpreadPair {
		t.Error("repeated Evaluate() changed max spread")
	}
	if *r1.KalshiPolySpread != *r2.KalshiPolySpread {
		t.Error("repeated Evaluate() changed pair spread")
	}
	if r1.DataCompleteness != r2.DataCompleteness {
		t.Error("repeated Evaluate() changed completeness")
	}
}

func TestEvaluateByID(t *testing.T) {
	cache := pricecache.New()
	e := New(cache, testLogger())
	e.SetPairs([]domain.MarketPair{kalshiPolyPair("p1", 0.05)})

	if _, err := e.EvaluateByID("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("EvaluateByID(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := e.EvaluateByID("p1"); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("EvaluateByID(no data) error = %v, want ErrInsufficientData", err)
	}

	_ = cache.Update("KALSHI", "K1", 0.55)
	_ = cache.Update("POLYMARKET", "P1", 0.58)
	if _, err := e.EvaluateByID("p1"); err != nil {
		t.Errorf("EvaluateByID() unexpected error: %v", err)
	}
}

func TestEvaluateAllDropsInsufficient(t *testing.T) {
	cache := pricecache.New()
	_ = cache.Update("KALSHI", "K1", 0.55)
	_ = cache.Update("POLYMARKET", "P1", 0.58)

	ready := kalshiPolyPair("ready", 0.05)
	stale := kalshiPolyPair("stale", 0.05)
	stale.Legs[domain.PlatformKalshi].Contracts = []string{"MISSING"}

	e := New(cache, testLogger())
	e.SetPairs([]domain.MarketPair{ready, stale})

	results := e.EvaluateAll()
	if len(results) != 1 || results[0].PairID != "ready" {
		t.Errorf("EvaluateAll() = %d results, want only \"ready\"", len(results))
	}
}

func TestSeverityBands(t *testing.T) {
	tests := []struct {
		spreadPct float64
		want      domain.Severity
	}{
		{9.99, domain.SeverityLow},
		{10.0, domain.SeverityMedium},
		{14.99, domain.SeverityMedium},
		{15.0, domain.SeverityHigh},
		{19.99, domain.SeverityHigh},
		{20.0, domain.SeverityCritical},
	}
	for _, tt := range tests {
		if got := domain.SeverityFor(tt.spreadPct / 100); got != tt.want {
			t.Errorf("SeverityFor(%v%%) = %q, want %q", tt.spreadPct, got, tt.want)
		}
	}
}

func TestAlertFrom(t *testing.T) {
	result := domain.SpreadResult{PairID: "p1", MaxSpread: 0.12}

	if _, ok := AlertFrom(result, 0.15); ok {
		t.Error("AlertFrom() below threshold should not alert")
	}

	alert, ok := AlertFrom(result, 0.05)
	if !ok {
		t.Fatal("AlertFrom() above threshold should alert")
	}
	if alert.Severity != domain.SeverityMedium {
		t.Errorf("Severity = %q, want medium", alert.Severity)
	}
	if alert.ID == "" {
		t.Error("alert ID should be set")
	}
	if alert.Threshold != 0.05 {
		t.Errorf("Threshold = %v, want 0.05", alert.Threshold)
	}
}

func TestAlertsGatedByPairThreshold(t *testing.T) {
	cache := pricecache.New()
	_ = cache.Update("KALSHI", "K1", 0.40)
	_ = cache.Update("POLYMARKET", "P1", 0.52)

	// Spread is 0.12: above the first pair's threshold, below the second's.
	loud := kalshiPolyPair("loud", 0.05)
	quiet := kalshiPolyPair("quiet", 0.20)

	e := New(cache, testLogger())
	e.SetPairs([]domain.MarketPair{loud, quiet})

	alerts := e.Alerts(0.01)
	if len(alerts) != 1 || alerts[0].Spread.PairID != "loud" {
		t.Fatalf("Alerts() = %d alerts, want only \"loud\"", len(alerts))
	}
}
