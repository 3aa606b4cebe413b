// Package classifier implements the Relationship Classifier (spec §4.4):
// a one-shot workflow over all unordered catalog pairs, bounded in
// concurrency, calling the external analyst model per pair and upserting
// the resulting graph edges.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"marketintel/internal/analyst"
	"marketintel/internal/catalog"
	"marketintel/internal/config"
	"marketintel/internal/quote"
	"marketintel/internal/store"
	"marketintel/pkg/types"
)

const systemPrompt = `You are a market-relationship classifier for a prediction-market intelligence system.
Given two prediction markets with their current probabilities, reason across three dimensions before classifying:

1. Temporal hierarchy — which resolves first, and can it serve as a leading indicator.
2. Conditionality — does A=YES materially raise or lower P(B=YES), and what is the sign.
3. Synthetic arbitrage — is this pair part of a triangle constraint where a third leg must close the probability sum.

Respond with a single JSON object with exactly these fields: market_key_a, market_key_b, relationship_type (one of equivalent, implied, mutually_exclusive, correlated), confidence_score (0-1), logic_justification, impact_direction (positive, negative, neutral), correlation_strength (low, medium, high, extreme), logical_layer (financial, political, statistical, direct), vantage_insight.`

// Classifier runs the one-shot classification workflow.
type Classifier struct {
	cfg      config.ClassifierConfig
	analyst  *analyst.Client
	store    *store.Client
	logger   *slog.Logger
}

// New creates a Classifier.
func New(cfg config.ClassifierConfig, a *analyst.Client, s *store.Client, logger *slog.Logger) *Classifier {
	return &Classifier{cfg: cfg, analyst: a, store: s, logger: logger.With("component", "relationship-classifier")}
}

// pairResult is the raw shape the analyst model is asked to return, before
// canonicalization and post-processing.
type pairResult struct {
	MarketKeyA          string                     `json:"market_key_a"`
	MarketKeyB          string                     `json:"market_key_b"`
	RelationshipType    types.RelationshipType     `json:"relationship_type"`
	ConfidenceScore     float64                    `json:"confidence_score"`
	LogicJustification  string                     `json:"logic_justification"`
	ImpactDirection     types.ImpactDirection      `json:"impact_direction"`
	CorrelationStrength types.CorrelationStrength  `json:"correlation_strength"`
	LogicalLayer        types.LogicalLayer         `json:"logical_layer"`
	VantageInsight      string                     `json:"vantage_insight"`
}

// Run fetches the catalog, classifies every unordered pair with bounded
// concurrency, and upserts every successfully classified relationship.
// Per spec §7, a single pair's analyst-model failure is reported and
// skipped; it never aborts the workflow.
func (c *Classifier) Run(ctx context.Context) error {
	markets, err := catalog.Fetch(ctx, c.store)
	if err != nil {
		return fmt.Errorf("fetch catalog: %w", err)
	}
	_, sortedKeys := catalog.Index(markets)
	byKey := make(map[string]types.Market, len(markets))
	for _, m := range markets {
		byKey[m.MarketKey] = m
	}

	quotes, err := catalog.LatestQuotes(ctx, c.store, 0)
	if err != nil {
		return fmt.Errorf("fetch latest quotes: %w", err)
	}
	demo := catalog.DemoTable(markets)

	concurrency := c.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		upserted []types.Relationship
		skipped  int
	)

pairLoop:
	for i := 0; i < len(sortedKeys); i++ {
		for j := i + 1; j < len(sortedKeys); j++ {
			marketA, marketB := byKey[sortedKeys[i]], byKey[sortedKeys[j]]

			if err := sem.Acquire(ctx, 1); err != nil {
				break pairLoop
			}
			wg.Add(1)
			go func(marketA, marketB types.Market) {
				defer sem.Release(1)
				defer wg.Done()

				rel, err := c.classifyPair(ctx, marketA, marketB, quotes, demo)
				if err != nil {
					c.logger.Warn("pair classification failed, skipping", "market_key_a", marketA.MarketKey, "market_key_b", marketB.MarketKey, "error", err)
					mu.Lock()
					skipped++
					mu.Unlock()
					return
				}
				mu.Lock()
				upserted = append(upserted, rel)
				mu.Unlock()
			}(marketA, marketB)
		}
	}
	wg.Wait()

	if len(upserted) == 0 {
		c.logger.Info("classification run complete", "upserted", 0, "skipped", skipped)
		return nil
	}

	if err := c.store.Upsert(ctx, store.TableMarketRelationships, "market_key_a,market_key_b", upserted); err != nil {
		return fmt.Errorf("upsert relationships: %w", err)
	}

	for _, key := range HubNodes(upserted, c.cfg.HubLinkThreshold) {
		c.logger.Info("hub node detected", "market_key", key)
	}

	c.logger.Info("classification run complete", "upserted", len(upserted), "skipped", skipped)
	return nil
}

// HubNodes counts (implied + correlated) edges per market_key across rel
// and returns the market keys whose count strictly exceeds threshold, in
// sorted order (spec §4.4 "Hub detection"). Exported so internal/api's
// graph-data endpoint can recompute the same advisory list against the
// full persisted edge set, not just one run's upserts.
func HubNodes(rel []types.Relationship, threshold int) []string {
	counts := make(map[string]int)
	for _, r := range rel {
		if r.RelationshipType != types.RelationshipImplied && r.RelationshipType != types.RelationshipCorrelated {
			continue
		}
		counts[r.MarketKeyA]++
		counts[r.MarketKeyB]++
	}

	var hubs []string
	for key, count := range counts {
		if count > threshold {
			hubs = append(hubs, key)
		}
	}
	sort.Strings(hubs)
	return hubs
}

// classifyPair calls the analyst model for a single pair, then applies
// post-processing (spec §4.4: probability_spread, risk_alert,
// arbitrage_flag) and canonicalizes the result.
func (c *Classifier) classifyPair(ctx context.Context, marketA, marketB types.Market, quotes map[string]types.Quote, demo map[string]float64) (types.Relationship, error) {
	probAPct, _, sourceA := catalog.PriceFor(marketA, quotes, demo)
	probBPct, _, sourceB := catalog.PriceFor(marketB, quotes, demo)

	userPrompt := buildPairPrompt(marketA, marketB, probAPct, sourceA, probBPct, sourceB)

	var result pairResult
	if err := c.analyst.ChatJSON(ctx, systemPrompt, userPrompt, &result); err != nil {
		return types.Relationship{}, fmt.Errorf("classify pair: %w", err)
	}

	rel := types.Relationship{
		MarketKeyA:          marketA.MarketKey,
		MarketKeyB:          marketB.MarketKey,
		RelationshipType:    result.RelationshipType,
		ConfidenceScore:     clampUnit(result.ConfidenceScore),
		LogicJustification:  result.LogicJustification,
		ImpactDirection:     result.ImpactDirection,
		CorrelationStrength: result.CorrelationStrength,
		LogicalLayer:        result.LogicalLayer,
		VantageInsight:      result.VantageInsight,
	}
	if sourceA != catalog.PriceSourceNone {
		rel.ProbabilityA = &probAPct
	}
	if sourceB != catalog.PriceSourceNone {
		rel.ProbabilityB = &probBPct
	}

	applyDerivedTags(&rel, c.cfg)

	return rel.Canonicalize(), nil
}

// applyDerivedTags implements spec §4.4's post-processing step, mutating
// rel in place before canonicalization (so A/B still refer to the order the
// probabilities were attached in).
func applyDerivedTags(rel *types.Relationship, cfg config.ClassifierConfig) {
	if rel.ProbabilityA == nil || rel.ProbabilityB == nil {
		return
	}
	probA, probB := *rel.ProbabilityA, *rel.ProbabilityB

	switch rel.RelationshipType {
	case types.RelationshipEquivalent:
		spread := quote.AbsSpread(probA, probB)
		rel.ProbabilitySpread = &spread
		if spread > cfg.DivergenceThresholdPct {
			tag := types.RiskAlertVenueDivergence
			rel.RiskAlert = &tag
		}
		if spread > cfg.ArbitrageFlagThresholdPct {
			tag := types.ArbitrageFlagHighValue
			rel.ArbitrageFlag = &tag
			rel.LogicJustification += fmt.Sprintf(" Probability spread of %.1f percentage points exceeds the arbitrage threshold.", spread)
		}
	case types.RelationshipMutuallyExclusive:
		deviation := quote.AbsSpread(probA+probB, 100)
		rel.ProbabilitySpread = &deviation
		if deviation > cfg.ArbitrageFlagThresholdPct {
			tag := types.ArbitrageFlagHighValue
			rel.ArbitrageFlag = &tag
			rel.LogicJustification += fmt.Sprintf(" Combined probability deviates from 100%% by %.1f percentage points, exceeding the arbitrage threshold.", deviation)
		}
	}
}

func buildPairPrompt(marketA types.Market, marketB types.Market, probAPct float64, sourceA catalog.PriceSource, probBPct float64, sourceB catalog.PriceSource) string {
	return fmt.Sprintf(
		`{"market_a":{"market_key":%q,"event_name":%q,"proposition_text":%q,"probability_pct":%s},"market_b":{"market_key":%q,"event_name":%q,"proposition_text":%q,"probability_pct":%s}}`,
		marketA.MarketKey, marketA.EventName, marketA.PropositionText, probabilityJSON(probAPct, sourceA),
		marketB.MarketKey, marketB.EventName, marketB.PropositionText, probabilityJSON(probBPct, sourceB),
	)
}

func probabilityJSON(pct float64, source catalog.PriceSource) string {
	if source == catalog.PriceSourceNone {
		return "null"
	}
	return fmt.Sprintf("%.2f", pct)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
