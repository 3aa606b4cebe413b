package classifier

import (
	"testing"

	"marketintel/internal/config"
	"marketintel/pkg/types"
)

func ptr(f float64) *float64 { return &f }

// TestApplyDerivedTagsEquivalentScenario reproduces spec §8 scenario 4:
// A=0.90, B=0.20 classified as equivalent.
func TestApplyDerivedTagsEquivalentScenario(t *testing.T) {
	t.Parallel()
	rel := types.Relationship{
		RelationshipType:   types.RelationshipEquivalent,
		ProbabilityA:       ptr(90),
		ProbabilityB:       ptr(20),
		LogicJustification: "same outcome",
	}
	cfg := config.ClassifierConfig{DivergenceThresholdPct: 5, ArbitrageFlagThresholdPct: 10}
	applyDerivedTags(&rel, cfg)

	if rel.ProbabilitySpread == nil || *rel.ProbabilitySpread != 70 {
		t.Fatalf("ProbabilitySpread = %v, want 70", rel.ProbabilitySpread)
	}
	if rel.RiskAlert == nil || *rel.RiskAlert != types.RiskAlertVenueDivergence {
		t.Errorf("RiskAlert = %v, want %q", rel.RiskAlert, types.RiskAlertVenueDivergence)
	}
	if rel.ArbitrageFlag == nil || *rel.ArbitrageFlag != types.ArbitrageFlagHighValue {
		t.Errorf("ArbitrageFlag = %v, want %q", rel.ArbitrageFlag, types.ArbitrageFlagHighValue)
	}
	if rel.LogicJustification == "same outcome" {
		t.Error("LogicJustification was not extended with a spread note")
	}
}

func TestApplyDerivedTagsSkipsWhenProbabilityMissing(t *testing.T) {
	t.Parallel()
	rel := types.Relationship{RelationshipType: types.RelationshipEquivalent, ProbabilityA: ptr(90)}
	applyDerivedTags(&rel, config.ClassifierConfig{DivergenceThresholdPct: 5, ArbitrageFlagThresholdPct: 10})
	if rel.ProbabilitySpread != nil {
		t.Error("expected no spread computed when one probability is missing")
	}
}

func TestApplyDerivedTagsMutuallyExclusive(t *testing.T) {
	t.Parallel()
	rel := types.Relationship{
		RelationshipType: types.RelationshipMutuallyExclusive,
		ProbabilityA:     ptr(70),
		ProbabilityB:     ptr(45),
	}
	cfg := config.ClassifierConfig{ArbitrageFlagThresholdPct: 10}
	applyDerivedTags(&rel, cfg)

	if rel.ProbabilitySpread == nil || *rel.ProbabilitySpread != 15 {
		t.Fatalf("ProbabilitySpread = %v, want 15 (|70+45-100|)", rel.ProbabilitySpread)
	}
	if rel.ArbitrageFlag == nil {
		t.Error("expected arbitrage_flag set when deviation exceeds threshold")
	}
}

func TestApplyDerivedTagsNoTagsBelowThreshold(t *testing.T) {
	t.Parallel()
	rel := types.Relationship{
		RelationshipType: types.RelationshipEquivalent,
		ProbabilityA:     ptr(50),
		ProbabilityB:     ptr(51),
	}
	applyDerivedTags(&rel, config.ClassifierConfig{DivergenceThresholdPct: 5, ArbitrageFlagThresholdPct: 10})
	if rel.RiskAlert != nil || rel.ArbitrageFlag != nil {
		t.Error("expected no tags for a 1pp spread under both thresholds")
	}
}

func TestHubNodesCountsImpliedAndCorrelatedOnly(t *testing.T) {
	t.Parallel()
	rel := []types.Relationship{
		{MarketKeyA: "A", MarketKeyB: "B", RelationshipType: types.RelationshipImplied},
		{MarketKeyA: "A", MarketKeyB: "C", RelationshipType: types.RelationshipImplied},
		{MarketKeyA: "A", MarketKeyB: "D", RelationshipType: types.RelationshipCorrelated},
		{MarketKeyA: "A", MarketKeyB: "E", RelationshipType: types.RelationshipCorrelated},
		{MarketKeyA: "A", MarketKeyB: "F", RelationshipType: types.RelationshipEquivalent},
	}
	hubs := HubNodes(rel, 3)
	if len(hubs) != 1 || hubs[0] != "A" {
		t.Fatalf("HubNodes() = %v, want [A] (4 implied+correlated edges > threshold 3)", hubs)
	}
}

func TestHubNodesEmptyBelowThreshold(t *testing.T) {
	t.Parallel()
	rel := []types.Relationship{
		{MarketKeyA: "A", MarketKeyB: "B", RelationshipType: types.RelationshipImplied},
	}
	hubs := HubNodes(rel, 3)
	if len(hubs) != 0 {
		t.Errorf("HubNodes() = %v, want empty", hubs)
	}
}

func TestClampUnit(t *testing.T) {
	t.Parallel()
	cases := map[float64]float64{-0.5: 0, 0.5: 0.5, 1.5: 1}
	for in, want := range cases {
		if got := clampUnit(in); got != want {
			t.Errorf("clampUnit(%v) = %v, want %v", in, got, want)
		}
	}
}
