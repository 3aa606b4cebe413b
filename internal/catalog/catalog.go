// Package catalog fetches the market catalog and the latest normalized
// quote per exchange-side identifier, and implements the single
// price-priority lookup function spec §9 requires the classifier, scanner,
// and scenario engine to share: live-from-identifier-A, then
// live-from-identifier-B, then a configured demo fallback, then nothing.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"marketintel/internal/store"
	"marketintel/pkg/types"
)

// Fetch loads the full market catalog (spec §3 "Market (catalog entry)").
func Fetch(ctx context.Context, s *store.Client) ([]types.Market, error) {
	var rows []types.Market
	if err := s.Select(ctx, store.TableMarketMetadata, nil, &rows); err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	return rows, nil
}

// LatestQuotes batch-fetches the most recent quote per exchange-side
// identifier by scanning market_signals in descending timestamp order and
// keeping the first occurrence per event_id (spec §4.3 step 3, §4.5 step b).
func LatestQuotes(ctx context.Context, s *store.Client, limit int) (map[string]types.Quote, error) {
	if limit <= 0 {
		limit = 2000
	}
	var rows []types.Quote
	err := s.Select(ctx, store.TableMarketSignals, map[string]string{
		"order": "timestamp.desc",
		"limit": fmt.Sprintf("%d", limit),
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("fetch latest quotes: %w", err)
	}

	latest := make(map[string]types.Quote, len(rows))
	for _, q := range rows {
		if _, seen := latest[q.EventID]; !seen {
			latest[q.EventID] = q
		}
	}
	return latest, nil
}

// PriceSource records where a resolved probability came from, so callers can
// tag demo-derived results distinctly (spec §9 open question: demo fallback
// is preserved and tagged, not treated as "no alert possible").
type PriceSource int

const (
	PriceSourceNone PriceSource = iota
	PriceSourceLive
	PriceSourceDemo
)

// PriceFor resolves the current probability percent for a market using the
// shared priority rule: live quote via venue-A identifier, else live quote
// via venue-B identifier, else the demo fallback table keyed by market_key,
// else unresolved. Returns the resolved depth alongside the probability so
// liquidity gating (spec §4.3) can reuse the same lookup.
func PriceFor(m types.Market, quotes map[string]types.Quote, demo map[string]float64) (probabilityPct float64, depthUSD float64, source PriceSource) {
	if m.VenueAIdentifier != "" {
		if q, ok := quotes[m.VenueAIdentifier]; ok {
			return q.ProbabilityPct, q.LiquidityDepthUSD, PriceSourceLive
		}
	}
	if m.VenueBIdentifier != "" {
		if q, ok := quotes[m.VenueBIdentifier]; ok {
			return q.ProbabilityPct, q.LiquidityDepthUSD, PriceSourceLive
		}
	}
	if pct, ok := demo[m.MarketKey]; ok {
		return pct, 0, PriceSourceDemo
	}
	return 0, 0, PriceSourceNone
}

// DemoTable builds the market_key -> demo-probability fallback map from the
// catalog itself (spec §4.3 step 4, §9): the "demo" probability map the
// original project hard-coded is modeled here as a per-market catalog
// column rather than a separate config table, so there is exactly one
// source of truth for what a market's fallback probability is.
func DemoTable(markets []types.Market) map[string]float64 {
	demo := make(map[string]float64)
	for _, m := range markets {
		if m.DemoProbabilityPct != nil {
			demo[m.MarketKey] = *m.DemoProbabilityPct
		}
	}
	return demo
}

// Index builds a market_key -> Market lookup, and a stable-sorted list of
// market keys (spec §9 open question on traversal determinism: neighbor
// expansion order should be stable, so every caller that iterates a map of
// markets does so via this sorted key list).
func Index(markets []types.Market) (byKey map[string]types.Market, sortedKeys []string) {
	byKey = make(map[string]types.Market, len(markets))
	sortedKeys = make([]string, 0, len(markets))
	for _, m := range markets {
		byKey[m.MarketKey] = m
		sortedKeys = append(sortedKeys, m.MarketKey)
	}
	sort.Strings(sortedKeys)
	return byKey, sortedKeys
}
