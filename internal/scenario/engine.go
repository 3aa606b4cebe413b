// Package scenario implements the Scenario Engine (spec §4.5): an
// on-demand request-response workflow that parses a natural-language shock,
// performs a bounded breadth-first traversal over the relationship graph
// with direction propagation and multiplicative confidence decay, and
// produces a narrative report.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketintel/internal/analyst"
	"marketintel/internal/catalog"
	"marketintel/internal/config"
	"marketintel/internal/store"
	"marketintel/pkg/types"
)

const noImpactsNarrative = "No connected markets were found for this scenario; the shock does not propagate through the known relationship graph."

const shockParsePrompt = `You are a market shock parser for a prediction-market intelligence system.
Given a user's natural-language query and the market catalog, identify which catalog market the shock most directly targets.
You must always return a market — never "no match" — and when the query is geopolitical or macro in nature, pick the most economically downstream market in the catalog rather than an abstract one.
Respond with a single JSON object with exactly these fields: target_market (a market_key from the catalog), assumed_change (a string of 15 words or fewer), direction (one of "UP" or "DOWN").`

const narrativePrompt = `You are a senior market analyst producing a scenario stress-test narrative for a prediction-market intelligence system.
You are given the scenario (target market, event name, proposition, assumed change, direction, current probability) and the impacted markets, each with its causal path and relationship metadata already reasoned about.
Respond with a single JSON object with exactly these fields: executive_summary (a short paragraph), market_impacts (an array of objects, one per impacted market, each with market_key, order, direction, confidence_pct, statement).
Every statement must follow the fixed template: "If [A] moves [UP/DOWN], then [B] is [X]% likely to move [Y] because of their [relationship_type] link," prefixed with its order label (e.g. "First-order: ...", "Second-order: ...").`

// Engine runs the on-demand scenario workflow. One request is handled at a
// time per call to Run; the engine itself holds no mutable state between
// requests (spec §5: "at-most-one-in-flight-per-request; no global queue").
type Engine struct {
	cfg     config.ScenarioConfig
	analyst *analyst.Client
	store   *store.Client
	logger  *slog.Logger
}

// New creates an Engine.
func New(cfg config.ScenarioConfig, a *analyst.Client, s *store.Client, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, analyst: a, store: s, logger: logger.With("component", "scenario-engine")}
}

type shockParse struct {
	TargetMarket  string `json:"target_market"`
	AssumedChange string `json:"assumed_change"`
	Direction     string `json:"direction"`
}

type narrativeResult struct {
	ExecutiveSummary string               `json:"executive_summary"`
	MarketImpacts     []narrativeImpact   `json:"market_impacts"`
}

type narrativeImpact struct {
	MarketKey    string  `json:"market_key"`
	Order        int     `json:"order"`
	Direction    string  `json:"direction"`
	ConfidencePct float64 `json:"confidence_pct"`
	Statement    string  `json:"statement"`
}

// Run executes the full scenario workflow for query and returns the
// persisted report. Once the pending row is inserted, the report is
// persisted even on failure (spec §7: "the scenario endpoint responds with a
// report row whose status = failed and an error message; never a silent
// hang"). If that first insert fails, Run returns the error and no report.
func (e *Engine) Run(ctx context.Context, query string) (*types.ScenarioReport, error) {
	report := &types.ScenarioReport{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    types.ReportPending,
		CreatedAt: nowFunc(),
	}
	if err := e.store.Insert(ctx, store.TableScenarioReports, []types.ScenarioReport{*report}); err != nil {
		return nil, fmt.Errorf("create pending report: %w", err)
	}

	report.Status = types.ReportProcessing
	e.patchStatus(ctx, report.ID, types.ReportProcessing, "")

	result, err := e.process(ctx, report, query)
	if err != nil {
		report.Status = types.ReportFailed
		report.ErrorMessage = err.Error()
		e.patchStatus(ctx, report.ID, types.ReportFailed, err.Error())
		e.logger.Warn("scenario request failed", "id", report.ID, "error", err)
		return report, nil
	}

	*report = *result
	if err := e.store.Patch(ctx, store.TableScenarioReports, map[string]string{"id": "eq." + report.ID}, report); err != nil {
		e.logger.Error("failed to persist completed scenario report", "id", report.ID, "error", err)
	}
	return report, nil
}

func (e *Engine) patchStatus(ctx context.Context, id string, status types.ReportStatus, errMsg string) {
	body := map[string]any{"status": status}
	if errMsg != "" {
		body["error_message"] = errMsg
	}
	if err := e.store.Patch(ctx, store.TableScenarioReports, map[string]string{"id": "eq." + id}, body); err != nil {
		e.logger.Warn("failed to patch scenario report status", "id", id, "status", status, "error", err)
	}
}

// process runs steps (b) through (f) of spec §4.5 and returns the completed
// report (not yet persisted).
func (e *Engine) process(ctx context.Context, report *types.ScenarioReport, query string) (*types.ScenarioReport, error) {
	markets, err := catalog.Fetch(ctx, e.store)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	byKey, _ := catalog.Index(markets)
	demo := catalog.DemoTable(markets)

	quotes, err := catalog.LatestQuotes(ctx, e.store, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch latest quotes: %w", err)
	}
	priceMap := make(map[string]float64, len(markets))
	for _, m := range markets {
		pct, _, source := catalog.PriceFor(m, quotes, demo)
		if source != catalog.PriceSourceNone {
			priceMap[m.MarketKey] = pct
		}
	}

	var relationships []types.Relationship
	if err := e.store.Select(ctx, store.TableMarketRelationships, nil, &relationships); err != nil {
		return nil, fmt.Errorf("fetch relationships: %w", err)
	}
	adjacency := buildAdjacency(relationships)

	shock, err := e.parseShock(ctx, query, markets)
	if err != nil {
		return nil, fmt.Errorf("parse shock: %w", err)
	}
	report.TriggerMarket = shock.TargetMarket

	if _, ok := byKey[shock.TargetMarket]; !ok {
		e.logger.Warn("target market not in catalog, traversal will still run against the supplied key", "target_market", shock.TargetMarket)
	}

	impacts, edges := traverse(shock.TargetMarket, shock.Direction, adjacency, e.cfg.MaxDepth, e.cfg.MinPathConfidence)

	narrative, err := e.buildNarrative(ctx, shock, byKey[shock.TargetMarket], priceMap, impacts)
	if err != nil {
		return nil, fmt.Errorf("build narrative: %w", err)
	}

	report.CausalChain = impacts
	report.Narrative = narrative
	report.AffectedNodes = affectedNodes(impacts)
	report.AffectedEdges = edges
	report.Status = types.ReportComplete
	return report, nil
}

func (e *Engine) parseShock(ctx context.Context, query string, markets []types.Market) (shockParse, error) {
	userPrompt := fmt.Sprintf(`{"query":%q,"catalog":%s}`, query, marketsJSON(markets))
	var parsed shockParse
	if err := e.analyst.ChatJSON(ctx, shockParsePrompt, userPrompt, &parsed); err != nil {
		return shockParse{}, err
	}
	parsed.Direction = strings.ToUpper(strings.TrimSpace(parsed.Direction))
	if parsed.Direction != "UP" && parsed.Direction != "DOWN" {
		parsed.Direction = "UP"
	}
	return parsed, nil
}

func (e *Engine) buildNarrative(ctx context.Context, shock shockParse, target types.Market, priceMap map[string]float64, impacts []types.CausalStep) (string, error) {
	if len(impacts) == 0 {
		return noImpactsNarrative, nil
	}

	ragContext := buildRAGContext(shock, target, priceMap, impacts)
	var result narrativeResult
	if err := e.analyst.ChatJSON(ctx, narrativePrompt, ragContext, &result); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(result.ExecutiveSummary)
	for _, impact := range result.MarketImpacts {
		b.WriteString(" ")
		b.WriteString(impact.Statement)
	}
	return b.String(), nil
}

func marketsJSON(markets []types.Market) string {
	var b strings.Builder
	b.WriteString("[")
	for i, m := range markets {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"market_key":%q,"event_name":%q,"proposition_text":%q}`, m.MarketKey, m.EventName, m.PropositionText)
	}
	b.WriteString("]")
	return b.String()
}

func buildRAGContext(shock shockParse, target types.Market, priceMap map[string]float64, impacts []types.CausalStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, `{"scenario":{"target_market":%q,"event_name":%q,"proposition_text":%q,"assumed_change":%q,"direction":%q,"current_probability_pct":%v},"impacted_markets":[`,
		shock.TargetMarket, target.EventName, target.PropositionText, shock.AssumedChange, shock.Direction, priceMap[shock.TargetMarket])
	for i, impact := range impacts {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"market_key":%q,"order":%d,"relationship_type":%q,"direction":%q,"cumulative_confidence":%v,"current_probability_pct":%v,"path":%s,"logic_justification":%q,"vantage_insight":%q}`,
			impact.MarketKey, impact.PropagationOrder, impact.RelationshipType, impact.Direction, impact.CumulativeConfidence,
			priceMap[impact.MarketKey], pathJSON(impact.Path), impact.Justification, impact.Insight)
	}
	b.WriteString("]}")
	return b.String()
}

func pathJSON(path []string) string {
	var b strings.Builder
	b.WriteString("[")
	for i, p := range path {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%q", p)
	}
	b.WriteString("]")
	return b.String()
}

// affectedNodes derives the distinct market_key set across the impacts
// themselves (spec §4.5(f)): the origin is never an impact, so it is never
// part of affected_nodes, matching spec §8 scenario 5's expectation.
func affectedNodes(impacts []types.CausalStep) []string {
	seen := make(map[string]bool, len(impacts))
	nodes := make([]string, 0)
	for _, impact := range impacts {
		if !seen[impact.MarketKey] {
			seen[impact.MarketKey] = true
			nodes = append(nodes, impact.MarketKey)
		}
	}
	sort.Strings(nodes)
	return nodes
}

// nowFunc is a seam so tests can substitute a fixed clock.
var nowFunc = time.Now
