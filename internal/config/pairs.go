package config

import (
	"fmt"
	"log/slog"

	"github.com/BurntSushi/toml"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/alanyoungcy/spreadwatch/internal/transform"
)

// pairsFile mirrors the on-disk pairs TOML structure.
type pairsFile struct {
	Pairs []pairDef `toml:"pairs"`
}

// pairDef is one [[pairs]] block. Legs are keyed by platform name
// (kalshi, polymarket, manifold), case-insensitive.
type pairDef struct {
	ID             string            `toml:"id"`
	Description    string            `toml:"description"`
	AlertThreshold float64           `toml:"alert_threshold"`
	Legs           map[string]legDef `toml:"legs"`
}

// legDef is one platform leg of a pair.
type legDef struct {
	Contracts []string  `toml:"contracts"`
	Transform string    `toml:"transform"`
	Threshold *float64  `toml:"threshold"`
	Weights   []float64 `toml:"weights"`
}

// LoadPairs reads the pair definitions from a TOML file. Malformed pairs are
// dropped with a warning rather than failing the whole file, so one bad
// entry cannot take the monitor down on reload.
func LoadPairs(path string, logger *slog.Logger) ([]domain.MarketPair, error) {
	var file pairsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("config: decode pairs file %s: %w", path, err)
	}

	pairs := make([]domain.MarketPair, 0, len(file.Pairs))
	for _, def := range file.Pairs {
		pair, err := buildPair(def)
		if err != nil {
			logger.Warn("dropping malformed pair",
				slog.String("pair_id", def.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// buildPair validates one pair definition and assembles the domain pair.
func buildPair(def pairDef) (domain.MarketPair, error) {
	if def.ID == "" {
		return domain.MarketPair{}, fmt.Errorf("config: pair id must not be empty")
	}
	if def.AlertThreshold < 0 {
		return domain.MarketPair{}, fmt.Errorf("config: pair %s: alert_threshold must be >= 0", def.ID)
	}
	if len(def.Legs) < 2 {
		return domain.MarketPair{}, fmt.Errorf("config: pair %s: at least two platform legs required", def.ID)
	}

	legs := make(map[domain.Platform]*domain.MarketLeg, len(def.Legs))
	for name, leg := range def.Legs {
		platform, err := domain.ParsePlatform(name)
		if err != nil {
			return domain.MarketPair{}, fmt.Errorf("config: pair %s: %w", def.ID, err)
		}
		if len(leg.Contracts) == 0 {
			return domain.MarketPair{}, fmt.Errorf("config: pair %s: leg %s has no contracts", def.ID, name)
		}

		tr, err := transform.Parse(leg.Transform, leg.Threshold, leg.Weights)
		if err != nil {
			return domain.MarketPair{}, fmt.Errorf("config: pair %s: leg %s: %w", def.ID, name, err)
		}

		legs[platform] = &domain.MarketLeg{
			Contracts: leg.Contracts,
			Transform: tr,
		}
	}

	return domain.MarketPair{
		ID:             def.ID,
		Description:    def.Description,
		Legs:           legs,
		AlertThreshold: def.AlertThreshold,
	}, nil
}
