package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"marketintel/internal/catalog"
	"marketintel/internal/classifier"
	"marketintel/internal/config"
	"marketintel/internal/scenario"
	"marketintel/internal/store"
	"marketintel/pkg/types"
)

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	store    *store.Client
	scenario *scenario.Engine
	cfg      config.ClassifierConfig
	logger   *slog.Logger
}

// NewHandlers creates a Handlers instance.
func NewHandlers(s *store.Client, sc *scenario.Engine, cfg config.ClassifierConfig, logger *slog.Logger) *Handlers {
	return &Handlers{store: s, scenario: sc, cfg: cfg, logger: logger.With("component", "api-handlers")}
}

// HandleHealth returns a simple liveness response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleGraphData serves the joined catalog/relationship/probability view
// the dashboard renders as a graph (spec §6).
func (h *Handlers) HandleGraphData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	markets, err := catalog.Fetch(ctx, h.store)
	if err != nil {
		h.logger.Error("graph-data: fetch catalog failed", "error", err)
		http.Error(w, "failed to load catalog", http.StatusInternalServerError)
		return
	}
	byKey, _ := catalog.Index(markets)

	var relationships []types.Relationship
	if err := h.store.Select(ctx, store.TableMarketRelationships, nil, &relationships); err != nil {
		h.logger.Error("graph-data: fetch relationships failed", "error", err)
		http.Error(w, "failed to load relationships", http.StatusInternalServerError)
		return
	}

	quotes, err := catalog.LatestQuotes(ctx, h.store, 0)
	if err != nil {
		h.logger.Error("graph-data: fetch latest quotes failed", "error", err)
		http.Error(w, "failed to load quotes", http.StatusInternalServerError)
		return
	}
	demo := catalog.DemoTable(markets)

	nodes := make([]GraphNode, 0, len(markets))
	for _, m := range markets {
		pct, _, source := catalog.PriceFor(m, quotes, demo)
		nodes = append(nodes, GraphNode{
			MarketKey:       m.MarketKey,
			EventName:       m.EventName,
			PropositionText: m.PropositionText,
			ProbabilityPct:  pct,
			PriceSource:     priceSourceLabel(source),
		})
	}

	edges := make([]GraphEdge, 0, len(relationships))
	arbitrageFlagCount, divergenceCount := 0, 0
	for _, rel := range relationships {
		_, okA := byKey[rel.MarketKeyA]
		_, okB := byKey[rel.MarketKeyB]
		if !okA || !okB {
			continue
		}
		edges = append(edges, GraphEdge{
			Source:              rel.MarketKeyA,
			Target:              rel.MarketKeyB,
			RelationshipType:    rel.RelationshipType,
			ConfidenceScore:     rel.ConfidenceScore,
			ImpactDirection:     rel.ImpactDirection,
			CorrelationStrength: rel.CorrelationStrength,
			ArbitrageFlag:       rel.ArbitrageFlag,
			RiskAlert:           rel.RiskAlert,
		})
		if rel.ArbitrageFlag != nil {
			arbitrageFlagCount++
		}
		if rel.RiskAlert != nil {
			divergenceCount++
		}
	}

	resp := GraphDataResponse{
		Nodes: nodes,
		Edges: edges,
		Meta: GraphMeta{
			TotalMarkets:       len(markets),
			TotalRelationships: len(relationships),
			HubNodes:           classifier.HubNodes(relationships, h.cfg.HubLinkThreshold),
			ArbitrageFlagCount: arbitrageFlagCount,
			DivergenceCount:    divergenceCount,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("graph-data: encode response failed", "error", err)
	}
}

func priceSourceLabel(source catalog.PriceSource) string {
	switch source {
	case catalog.PriceSourceLive:
		return "live"
	case catalog.PriceSourceDemo:
		return "demo"
	default:
		return "none"
	}
}

// HandleScenario runs a scenario request synchronously and returns the
// completed (or failed) report (spec §4.5, §7: never a silent hang).
func (h *Handlers) HandleScenario(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	report, err := h.scenario.Run(r.Context(), req.Query)
	if err != nil {
		h.logger.Error("scenario request failed", "error", err)
		http.Error(w, "scenario request failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		h.logger.Error("scenario: encode response failed", "error", err)
	}
}

// HandleScenarios lists recent scenario reports.
func (h *Handlers) HandleScenarios(w http.ResponseWriter, r *http.Request) {
	var reports []types.ScenarioReport
	query := map[string]string{"order": "created_at.desc", "limit": "50"}
	if err := h.store.Select(r.Context(), store.TableScenarioReports, query, &reports); err != nil {
		h.logger.Error("scenarios: fetch failed", "error", err)
		http.Error(w, "failed to load scenario reports", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reports); err != nil {
		h.logger.Error("scenarios: encode response failed", "error", err)
	}
}
