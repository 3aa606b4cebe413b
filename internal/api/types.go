// Package api exposes the plain-HTTP interface the dashboard consumes
// (spec §6): health, graph data, and the on-demand scenario workflow. No
// WebSocket fan-out — the "change-broadcast facility" spec §6 mentions
// belongs to the persistent store's own Realtime channel, not this API
// (see DESIGN.md).
package api

import "marketintel/pkg/types"

// GraphNode is one market rendered as a graph-data node, with its resolved
// current probability joined in from the latest quote (or demo fallback).
type GraphNode struct {
	MarketKey       string  `json:"market_key"`
	EventName       string  `json:"event_name"`
	PropositionText string  `json:"proposition_text"`
	ProbabilityPct  float64 `json:"probability_pct"`
	PriceSource     string  `json:"price_source"` // "live", "demo", or "none"
}

// GraphEdge is one relationship rendered as a graph-data edge.
type GraphEdge struct {
	Source              string                     `json:"source"`
	Target              string                     `json:"target"`
	RelationshipType    types.RelationshipType     `json:"relationship_type"`
	ConfidenceScore     float64                    `json:"confidence_score"`
	ImpactDirection     types.ImpactDirection      `json:"impact_direction"`
	CorrelationStrength types.CorrelationStrength  `json:"correlation_strength"`
	ArbitrageFlag       *string                    `json:"arbitrage_flag,omitempty"`
	RiskAlert           *string                    `json:"risk_alert,omitempty"`
}

// GraphMeta summarizes the graph for dashboard headline figures.
type GraphMeta struct {
	TotalMarkets       int      `json:"total_markets"`
	TotalRelationships int      `json:"total_relationships"`
	HubNodes           []string `json:"hub_nodes"`
	ArbitrageFlagCount int      `json:"arbitrage_flag_count"`
	DivergenceCount    int      `json:"divergence_count"`
}

// GraphDataResponse is the body of GET /api/graph-data.
type GraphDataResponse struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	Meta  GraphMeta   `json:"meta"`
}

// ScenarioRequest is the body of POST /api/scenario.
type ScenarioRequest struct {
	Query string `json:"query"`
}
