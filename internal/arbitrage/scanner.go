// Package arbitrage implements the periodic Arbitrage Scanner (spec §4.3):
// on each cycle it loads every "equivalent" relationship, resolves each
// side's current probability and depth through the shared catalog
// price-priority rule, and emits an alert when the spread and liquidity
// gates both clear.
package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketintel/internal/catalog"
	"marketintel/internal/config"
	"marketintel/internal/quote"
	"marketintel/internal/store"
	"marketintel/pkg/types"
)

// Scanner runs the periodic scan loop.
type Scanner struct {
	cfg    config.ArbitrageConfig
	store  *store.Client
	logger *slog.Logger
}

// New creates a Scanner.
func New(cfg config.ArbitrageConfig, s *store.Client, logger *slog.Logger) *Scanner {
	return &Scanner{cfg: cfg, store: s, logger: logger.With("component", "arbitrage-scanner")}
}

// Run drives the periodic scan until ctx is cancelled, running one scan
// immediately on start rather than waiting a full interval first.
func (sc *Scanner) Run(ctx context.Context) {
	sc.runScan(ctx)

	ticker := time.NewTicker(sc.cfg.PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.runScan(ctx)
		}
	}
}

func (sc *Scanner) runScan(ctx context.Context) {
	alerts, err := sc.Scan(ctx)
	if err != nil {
		sc.logger.Error("scan failed", "error", err)
		return
	}
	if len(alerts) == 0 {
		return
	}
	if err := sc.store.Insert(ctx, store.TableArbitrageAlerts, alerts); err != nil {
		sc.logger.Error("failed to persist arbitrage alerts", "count", len(alerts), "error", err)
		return
	}
	sc.logger.Info("arbitrage scan complete", "alerts", len(alerts))
}

// Scan performs one scan cycle and returns the alerts it would emit,
// without persisting them — split out so the spread/liquidity gating logic
// can be tested without a store dependency.
func (sc *Scanner) Scan(ctx context.Context) ([]types.ArbitrageAlert, error) {
	var relationships []types.Relationship
	err := sc.store.Select(ctx, store.TableMarketRelationships, map[string]string{
		"relationship_type": "eq." + string(types.RelationshipEquivalent),
	}, &relationships)
	if err != nil {
		return nil, fmt.Errorf("fetch equivalent relationships: %w", err)
	}
	if len(relationships) == 0 {
		return nil, nil
	}

	markets, err := catalog.Fetch(ctx, sc.store)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	byKey, _ := catalog.Index(markets)
	demo := catalog.DemoTable(markets)

	quotes, err := catalog.LatestQuotes(ctx, sc.store, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch latest quotes: %w", err)
	}

	now := time.Now()
	var alerts []types.ArbitrageAlert
	for _, rel := range relationships {
		marketA, okA := byKey[rel.MarketKeyA]
		marketB, okB := byKey[rel.MarketKeyB]
		if !okA || !okB {
			sc.logger.Warn("relationship references unknown market", "market_key_a", rel.MarketKeyA, "market_key_b", rel.MarketKeyB)
			continue
		}

		probA, depthA, sourceA := catalog.PriceFor(marketA, quotes, demo)
		probB, depthB, sourceB := catalog.PriceFor(marketB, quotes, demo)
		if sourceA == catalog.PriceSourceNone || sourceB == catalog.PriceSourceNone {
			continue
		}

		spread := quote.AbsSpread(probA, probB)
		if spread <= sc.cfg.SpreadThresholdPct {
			continue
		}
		// A demo-resolved side carries no live depth reading (spec §9 open
		// question on demo fallback): its liquidity is taken on the
		// configured fallback's own authority rather than gated here, so
		// only a live-quote side is checked against the threshold.
		if sourceA == catalog.PriceSourceLive && depthA <= sc.cfg.LiquidityThresholdUSD {
			continue
		}
		if sourceB == catalog.PriceSourceLive && depthB <= sc.cfg.LiquidityThresholdUSD {
			continue
		}

		status := types.AlertStatusLive
		if sourceA == catalog.PriceSourceDemo || sourceB == catalog.PriceSourceDemo {
			status = types.AlertStatusSimulated
		}

		alerts = append(alerts, types.ArbitrageAlert{
			ID:                 uuid.NewString(),
			Timestamp:          now,
			MarketPair:         fmt.Sprintf("%s ↔ %s", rel.MarketKeyA, rel.MarketKeyB),
			Spread:             spread,
			PotentialProfitPct: spread,
			Status:             status,
		})
	}

	return alerts, nil
}
