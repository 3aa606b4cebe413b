package arbitrage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"marketintel/internal/config"
	"marketintel/internal/store"
	"marketintel/pkg/types"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer serves market_relationships, market_metadata, and
// market_signals from the given fixtures, routed by the PostgREST-style
// path suffix.
func newTestServer(t *testing.T, relationships []types.Relationship, markets []types.Market, signals []types.Quote) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body any
		switch {
		case strings.HasSuffix(r.URL.Path, "/market_relationships"):
			body = relationships
		case strings.HasSuffix(r.URL.Path, "/market_metadata"):
			body = markets
		case strings.HasSuffix(r.URL.Path, "/market_signals"):
			body = signals
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
}

func ptr(f float64) *float64 { return &f }

// TestArbitrageAlertScenario reproduces spec §8 scenario 2: A=0.82 depth
// $1000, B=0.76 depth $800, spread 6pp, both sides liquid.
func TestArbitrageAlertScenario(t *testing.T) {
	t.Parallel()

	relationships := []types.Relationship{{MarketKeyA: "A", MarketKeyB: "B", RelationshipType: types.RelationshipEquivalent}}
	markets := []types.Market{
		{MarketKey: "A", VenueAIdentifier: "a-id"},
		{MarketKey: "B", VenueAIdentifier: "b-id"},
	}
	signals := []types.Quote{
		{EventID: "a-id", ProbabilityPct: 82, LiquidityDepthUSD: 1000},
		{EventID: "b-id", ProbabilityPct: 76, LiquidityDepthUSD: 800},
	}

	srv := newTestServer(t, relationships, markets, signals)
	defer srv.Close()

	s := store.New(srv.URL, "key", nopLogger())
	sc := New(config.ArbitrageConfig{SpreadThresholdPct: 3.0, LiquidityThresholdUSD: 500}, s, nopLogger())

	alerts, err := sc.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.MarketPair != "A ↔ B" {
		t.Errorf("MarketPair = %q, want %q", a.MarketPair, "A ↔ B")
	}
	if a.Spread < 5.99 || a.Spread > 6.01 {
		t.Errorf("Spread = %v, want ~6.0", a.Spread)
	}
	if a.PotentialProfitPct != a.Spread {
		t.Errorf("PotentialProfitPct = %v, want == Spread (%v)", a.PotentialProfitPct, a.Spread)
	}
	if a.Status != types.AlertStatusLive {
		t.Errorf("Status = %v, want alert", a.Status)
	}
}

// TestArbitrageGatedByLiquidity reproduces spec §8 scenario 3: same spread
// as scenario 2 but B's depth is only $200, below the threshold.
func TestArbitrageGatedByLiquidity(t *testing.T) {
	t.Parallel()

	relationships := []types.Relationship{{MarketKeyA: "A", MarketKeyB: "B", RelationshipType: types.RelationshipEquivalent}}
	markets := []types.Market{
		{MarketKey: "A", VenueAIdentifier: "a-id"},
		{MarketKey: "B", VenueAIdentifier: "b-id"},
	}
	signals := []types.Quote{
		{EventID: "a-id", ProbabilityPct: 82, LiquidityDepthUSD: 1000},
		{EventID: "b-id", ProbabilityPct: 76, LiquidityDepthUSD: 200},
	}

	srv := newTestServer(t, relationships, markets, signals)
	defer srv.Close()

	s := store.New(srv.URL, "key", nopLogger())
	sc := New(config.ArbitrageConfig{SpreadThresholdPct: 3.0, LiquidityThresholdUSD: 500}, s, nopLogger())

	alerts, err := sc.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("got %d alerts, want 0 (gated by liquidity)", len(alerts))
	}
}

func TestArbitrageSkipsPairWithNoResolvablePrice(t *testing.T) {
	t.Parallel()

	relationships := []types.Relationship{{MarketKeyA: "A", MarketKeyB: "B", RelationshipType: types.RelationshipEquivalent}}
	markets := []types.Market{
		{MarketKey: "A", VenueAIdentifier: "a-id"},
		{MarketKey: "B", VenueAIdentifier: "b-id"},
	}
	srv := newTestServer(t, relationships, markets, nil)
	defer srv.Close()

	s := store.New(srv.URL, "key", nopLogger())
	sc := New(config.ArbitrageConfig{SpreadThresholdPct: 3.0, LiquidityThresholdUSD: 500}, s, nopLogger())

	alerts, err := sc.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("got %d alerts, want 0 when neither side has a resolvable price", len(alerts))
	}
}

func TestArbitrageDemoFallbackMarksSimulated(t *testing.T) {
	t.Parallel()

	relationships := []types.Relationship{{MarketKeyA: "A", MarketKeyB: "B", RelationshipType: types.RelationshipEquivalent}}
	markets := []types.Market{
		{MarketKey: "A", VenueAIdentifier: "a-id"},
		{MarketKey: "B", DemoProbabilityPct: ptr(50)},
	}
	signals := []types.Quote{
		{EventID: "a-id", ProbabilityPct: 82, LiquidityDepthUSD: 1000},
	}
	srv := newTestServer(t, relationships, markets, signals)
	defer srv.Close()

	s := store.New(srv.URL, "key", nopLogger())
	sc := New(config.ArbitrageConfig{SpreadThresholdPct: 3.0, LiquidityThresholdUSD: 0}, s, nopLogger())

	alerts, err := sc.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Status != types.AlertStatusSimulated {
		t.Errorf("Status = %v, want simulated", alerts[0].Status)
	}
}
