// Package microstructure implements the process-local, per-asset
// microstructure cache (spec §3): best bid/ask, depth within 2% of mid,
// recent spread, and recent 24h volume. The cache is disjoint per venue (each
// session owns a distinct key space) so the only safety requirement is
// map-level concurrency, following the split used by the teacher's
// internal/market/book.go between a full-snapshot apply and an incremental
// apply.
package microstructure

import (
	"sync"
	"time"

	"marketintel/pkg/types"
)

// DepthBandPct is the +/-2% band around mid within which book depth is summed.
const DepthBandPct = 0.02

// Cache holds one MicrostructureEntry per exchange-side asset identifier.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]types.MicrostructureEntry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]types.MicrostructureEntry)}
}

// Get returns the current entry for id, if any.
func (c *Cache) Get(id string) (types.MicrostructureEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// ApplyBook replaces the full book-derived state for id: best bid, best ask,
// and depth computed as the sum of price*size over levels within
// DepthBandPct of mid on each side, mirroring the Book/ticker-like message
// handling in spec §4.1.
func (c *Cache) ApplyBook(id string, bids, asks []types.PriceLevel, now time.Time) {
	var bestBid, bestAsk float64
	hasBid, hasAsk := len(bids) > 0, len(asks) > 0
	if hasBid {
		bestBid = bids[0].Price
		for _, l := range bids {
			if l.Price > bestBid {
				bestBid = l.Price
			}
		}
	}
	if hasAsk {
		bestAsk = asks[0].Price
		for _, l := range asks {
			if l.Price < bestAsk {
				bestAsk = l.Price
			}
		}
	}

	var mid float64
	hasMid := hasBid && hasAsk
	if hasMid {
		mid = (bestBid + bestAsk) / 2
	}

	depth := 0.0
	if hasMid {
		lower, upper := mid*(1-DepthBandPct), mid*(1+DepthBandPct)
		for _, l := range bids {
			if l.Price >= lower && l.Price <= upper {
				depth += l.Price * l.Size
			}
		}
		for _, l := range asks {
			if l.Price >= lower && l.Price <= upper {
				depth += l.Price * l.Size
			}
		}
	}

	spread := bestAsk - bestBid
	if spread < 0 {
		spread = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.entries[id]
	c.entries[id] = types.MicrostructureEntry{
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		HasBid:    hasBid,
		HasAsk:    hasAsk,
		DepthUSD:  depth,
		SpreadPct: spread,
		HasSpread: hasMid,
		Volume24h: prev.Volume24h,
		HasVolume: prev.HasVolume,
		UpdatedAt: now,
	}
}

// ApplyTicker replaces the ticker-derived state for id: best bid/ask,
// spread = max(ask-bid,0), and 24h volume.
func (c *Cache) ApplyTicker(id string, bid, ask, volume24h float64, now time.Time) {
	spread := ask - bid
	if spread < 0 {
		spread = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.entries[id]
	c.entries[id] = types.MicrostructureEntry{
		BestBid:   bid,
		BestAsk:   ask,
		HasBid:    true,
		HasAsk:    true,
		DepthUSD:  prev.DepthUSD,
		SpreadPct: spread,
		HasSpread: true,
		Volume24h: volume24h,
		HasVolume: true,
		UpdatedAt: now,
	}
}

// ApplyPriceChange is the incremental update used by Exchange A's
// price_change message: updates best bid/ask only, preserving the
// previously computed depth (no ladder was sent).
func (c *Cache) ApplyPriceChange(id string, bestBid, bestAsk float64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.entries[id]
	prev.BestBid, prev.HasBid = bestBid, true
	prev.BestAsk, prev.HasAsk = bestAsk, true
	prev.UpdatedAt = now
	c.entries[id] = prev
}
