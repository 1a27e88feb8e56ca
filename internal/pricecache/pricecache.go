// Package pricecache holds the latest observed probability per
// (platform, contract) pair. The cache is memory-resident for the process
// lifetime and rebuilt from the stream backlog on restart; there is no
// eviction because contract cardinality is bounded by configuration.
package pricecache

import (
	"sync"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// Cache is the shared mutable price state between the stream consumer (sole
// writer) and concurrent read-only evaluators. A single mutex serializes
// access; each update touches exactly one key, so no multi-key transaction
// is needed.
type Cache struct {
	mu         sync.RWMutex
	prices     map[domain.Platform]map[string]float64
	lastUpdate map[string]time.Time // "PLATFORM:contract" -> update time
}

// New creates an empty Cache with a bucket per supported platform.
func New() *Cache {
	prices := make(map[domain.Platform]map[string]float64, len(domain.Platforms))
	for _, p := range domain.Platforms {
		prices[p] = make(map[string]float64)
	}
	return &Cache{
		prices:     prices,
		lastUpdate: make(map[string]time.Time),
	}
}

// Update overwrites the cached price for a contract and refreshes its
// timestamp. Last write wins: there is no ordering check against the tick's
// source time, so two ticks arriving out of network order let the later
// arrival win even when its source time is older. Unknown sources are
// rejected with domain.ErrUnknownSource.
func (c *Cache) Update(source, contractID string, price float64) error {
	platform, err := domain.ParsePlatform(source)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[platform][contractID] = price
	c.lastUpdate[string(platform)+":"+contractID] = time.Now()
	return nil
}

// Get returns the cached price for one contract.
func (c *Cache) Get(platform domain.Platform, contractID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[platform][contractID]
	return price, ok
}

// LastUpdate returns the time the contract's price was last written.
func (c *Cache) LastUpdate(platform domain.Platform, contractID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.lastUpdate[string(platform)+":"+contractID]
	return ts, ok
}

// NormalizedProb reconciles the cached prices for one platform leg of a pair
// into a single probability. It returns ok=false when nothing is cached for
// the leg or the transform fails; a partially cached leg proceeds with the
// subset that is available. A malformed leg therefore degrades to missing
// data rather than failing the whole evaluation.
func (c *Cache) NormalizedProb(platform domain.Platform, pair *domain.MarketPair) (float64, bool) {
	leg, ok := pair.Legs[platform]
	if !ok || leg == nil || len(leg.Contracts) == 0 {
		return 0, false
	}

	c.mu.RLock()
	prices := make([]float64, 0, len(leg.Contracts))
	for _, id := range leg.Contracts {
		if p, cached := c.prices[platform][id]; cached {
			prices = append(prices, p)
		}
	}
	c.mu.RUnlock()

	if len(prices) == 0 {
		return 0, false
	}

	prob, err := leg.Transform.Apply(prices)
	if err != nil {
		return 0, false
	}
	return prob, true
}

// Stats summarizes cache occupancy for diagnostics.
type Stats struct {
	KalshiContracts     int `json:"kalshi_contracts"`
	PolymarketContracts int `json:"polymarket_contracts"`
	ManifoldContracts   int `json:"manifold_contracts"`
	TotalContracts      int `json:"total_contracts"`
	LastUpdates         int `json:"last_updates"`
}

// Stats returns a snapshot of cache occupancy.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		KalshiContracts:     len(c.prices[domain.PlatformKalshi]),
		PolymarketContracts: len(c.prices[domain.PlatformPolymarket]),
		ManifoldContracts:   len(c.prices[domain.PlatformManifold]),
		LastUpdates:         len(c.lastUpdate),
	}
	s.TotalContracts = s.KalshiContracts + s.PolymarketContracts + s.ManifoldContracts
	return s
}
