// Package quote implements the pure arithmetic core of quote normalization:
// confidence scoring, the probability clamp, and spread-percent computation
// (spec §4.1). These are deliberately free of I/O and concurrency so they
// can be tested exhaustively against the boundary cases in spec §8.
package quote

import (
	"math"

	"github.com/shopspring/decimal"

	"marketintel/pkg/types"
)

// LowConfidenceThreshold is the score below which a quote is flagged
// low_confidence (spec §4.1, strictly less-than per spec §8).
const LowConfidenceThreshold = 50

// DepthComponentMax and SpreadComponentMax are the two halves of the 0-100
// confidence score.
const (
	DepthComponentMax  = 60.0
	SpreadComponentMax = 40.0
	NeutralSpreadComponent = 20.0
)

// Confidence computes the [0,100] confidence score for a quote given its
// enriched depth and (possibly unknown) spread percent, and the
// confidence_flag that accompanies it.
//
//   - Depth component (0-60): min(log10(depth)*10, 60) if depth>0, else 0.
//   - Spread component (0-40): max(0, 40-spreadPct*2) if spreadPct known,
//     else 20 (neutral).
//
// The sum is clamped to [0,100] and rounded to the nearest integer.
func Confidence(depthUSD float64, spreadPct *float64) (score float64, flag *string) {
	depthComponent := 0.0
	if depthUSD > 0 {
		depthComponent = math.Min(math.Log10(depthUSD)*10, DepthComponentMax)
	}

	spreadComponent := NeutralSpreadComponent
	if spreadPct != nil {
		spreadComponent = math.Max(0, SpreadComponentMax-*spreadPct*2)
	}

	sum := depthComponent + spreadComponent
	if sum < 0 {
		sum = 0
	}
	if sum > 100 {
		sum = 100
	}
	score = math.Round(sum)

	if score < LowConfidenceThreshold {
		f := types.ConfidenceFlagLow
		flag = &f
	}
	return score, flag
}

// SpreadPct computes (spread/mid)*100 using decimal arithmetic: the
// bid_ask_spread_pct figure persisted on each emitted quote and fed into
// Confidence. Returns nil when mid is not strictly positive.
func SpreadPct(spread, mid float64) *float64 {
	if mid <= 0 {
		return nil
	}
	pct, _ := decimal.NewFromFloat(spread).
		Div(decimal.NewFromFloat(mid)).
		Mul(decimal.NewFromInt(100)).
		Float64()
	return &pct
}

// AbsSpread computes |a - b| in percentage points using decimal arithmetic,
// the figure used for both arbitrage-spread gating (spec §4.3) and
// classifier divergence tagging (spec §4.4).
func AbsSpread(a, b float64) float64 {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b))
	v, _ := diff.Abs().Float64()
	return v
}

// ClampProbability applies the percent-rescale-then-clamp rule (spec §4.1,
// §8): values >1 are treated as percent and divided by 100, then the result
// is clamped to [0,1].
func ClampProbability(raw float64) float64 {
	return float64(types.Probability(raw).Clamp())
}
