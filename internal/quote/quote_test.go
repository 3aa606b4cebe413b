package quote

import (
	"math"
	"testing"
)

func TestConfidenceDepthZeroSpreadUnknown(t *testing.T) {
	t.Parallel()
	score, flag := Confidence(0, nil)
	if score != NeutralSpreadComponent {
		t.Errorf("Confidence(0, nil) score = %v, want %v", score, NeutralSpreadComponent)
	}
	if flag == nil {
		t.Error("Confidence(0, nil) should flag low_confidence")
	}
}

func TestConfidenceHighDepthTightSpread(t *testing.T) {
	t.Parallel()
	spread := 0.5
	score, flag := Confidence(1_000_000, &spread)
	// depth component: min(log10(1e6)*10,60) = min(60,60) = 60
	// spread component: max(0, 40-0.5*2) = 39
	if score != 99 {
		t.Errorf("Confidence() score = %v, want 99", score)
	}
	if flag != nil {
		t.Errorf("Confidence() flag = %v, want nil", *flag)
	}
}

func TestConfidenceWorkedExample(t *testing.T) {
	t.Parallel()
	// spec §8 scenario 1: depth=128, spread≈3.125 → depth≈20.8, spread≈33.75 → sum≈55 (not low)
	spread := 3.125
	score, flag := Confidence(128, &spread)
	if score < 50 {
		t.Errorf("Confidence(128, 3.125) = %v, want >= 50 (not low_confidence)", score)
	}
	if flag != nil {
		t.Errorf("Confidence(128, 3.125) flag = %v, want nil", *flag)
	}
}

func TestConfidenceScoreBounded(t *testing.T) {
	t.Parallel()
	for _, depth := range []float64{0, 1, 100, 1e12} {
		for _, spread := range []*float64{nil, ptr(0), ptr(1000)} {
			score, _ := Confidence(depth, spread)
			if score < 0 || score > 100 {
				t.Errorf("Confidence(%v, %v) = %v, want in [0,100]", depth, spread, score)
			}
		}
	}
}

func TestSpreadPctNilWhenMidNonPositive(t *testing.T) {
	t.Parallel()
	if got := SpreadPct(1, 0); got != nil {
		t.Errorf("SpreadPct(1,0) = %v, want nil", got)
	}
	if got := SpreadPct(1, -1); got != nil {
		t.Errorf("SpreadPct(1,-1) = %v, want nil", got)
	}
}

func TestSpreadPctComputesPercent(t *testing.T) {
	t.Parallel()
	got := SpreadPct(0.02, 0.64)
	want := 3.125
	if got == nil || math.Abs(*got-want) > 1e-9 {
		t.Errorf("SpreadPct(0.02, 0.64) = %v, want %v", got, want)
	}
}

func TestAbsSpread(t *testing.T) {
	t.Parallel()
	if got := AbsSpread(0.82*100, 0.76*100); math.Abs(got-6) > 1e-9 {
		t.Errorf("AbsSpread(82,76) = %v, want 6", got)
	}
	if got := AbsSpread(10, 20); got != 10 {
		t.Errorf("AbsSpread(10,20) = %v, want 10", got)
	}
}

func TestClampProbability(t *testing.T) {
	t.Parallel()
	if got := ClampProbability(1.5); math.Abs(got-0.015) > 1e-9 {
		t.Errorf("ClampProbability(1.5) = %v, want 0.015", got)
	}
	if got := ClampProbability(0.5); got != 0.5 {
		t.Errorf("ClampProbability(0.5) = %v, want 0.5", got)
	}
}

func ptr(f float64) *float64 { return &f }
