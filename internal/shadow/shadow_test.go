package shadow

import (
	"context"
	"testing"

	"github.com/rawblock/sentinel-engine/internal/aggregate"
	"github.com/rawblock/sentinel-engine/internal/config"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

func evidence(signature string, delta, weight float64) models.AggregatedEvidence {
	prod := aggregate.New(config.Static{})
	ledger := []models.DetectionContribution{
		{Detector: "useragent", Category: "identity", Delta: delta, Weight: weight, Reason: "test"},
	}
	res := prod.Score(ledger)
	return models.AggregatedEvidence{
		Ledger:         ledger,
		BotProbability: res.Probability,
		RiskBand:       res.RiskBand,
	}
}

// Scenario: a candidate with a steeper squash re-bands mid-range traffic but
// agrees on the extremes. The drift report must attribute exactly the
// mid-range moves.
func TestRunner_DivergenceOnSteeperSquash(t *testing.T) {
	candidate := aggregate.New(config.Static{})
	candidate.DominantWeight = 1.5

	runner := NewRunner(nil, "steeper-squash", candidate)

	// Mid-range: production Medium, candidate High.
	mid, err := runner.Observe(context.Background(), "1.2.3.4:abc", evidence("mid", 1.0, 1.0))
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if !mid.Diverged() {
		t.Fatalf("expected band divergence on mid-range ledger: prod=%s cand=%s", mid.ProductionBand, mid.CandidateBand)
	}

	// Near-zero evidence: both sit at Elevated.
	flat, err := runner.Observe(context.Background(), "1.2.3.5:abc", evidence("flat", 0.0, 1.0))
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if flat.Diverged() {
		t.Fatalf("no divergence expected on empty-signal ledger: prod=%s cand=%s", flat.ProductionBand, flat.CandidateBand)
	}

	rep := runner.DriftReport()
	if rep.TotalRuns != 2 {
		t.Fatalf("TotalRuns = %d, want 2", rep.TotalRuns)
	}
	if rep.Divergences != 1 {
		t.Fatalf("Divergences = %d, want 1", rep.Divergences)
	}
	if rep.AvgDelta <= 0 {
		t.Fatalf("steeper candidate should raise mean probability, AvgDelta = %f", rep.AvgDelta)
	}
}

// An identical candidate must report zero drift and perfect structural
// agreement.
func TestRunner_IdenticalCandidate(t *testing.T) {
	runner := NewRunner(nil, "identity", aggregate.New(config.Static{}))

	deltas := []float64{-1.5, -0.5, 0, 0.5, 1.5, 3.0}
	for i, d := range deltas {
		if _, err := runner.Observe(context.Background(), "sig", evidence(string(rune('a'+i)), d, 1.0)); err != nil {
			t.Fatalf("Observe: %v", err)
		}
	}

	rep := runner.DriftReport()
	if rep.Divergences != 0 {
		t.Fatalf("identical candidate diverged %d times", rep.Divergences)
	}
	if rep.ARI < 0.99 {
		t.Fatalf("ARI = %f, want ~1.0", rep.ARI)
	}
	if rep.VI > 0.01 {
		t.Fatalf("VI = %f, want ~0", rep.VI)
	}
}

func TestEntropy(t *testing.T) {
	uniform := map[models.RiskBand]int{models.RiskNone: 10, models.RiskCritical: 10}
	if e := Entropy(uniform); e < 0.99 || e > 1.01 {
		t.Errorf("two equal bands should have 1 bit of entropy, got %f", e)
	}

	collapsed := map[models.RiskBand]int{models.RiskCritical: 20}
	if e := Entropy(collapsed); e != 0 {
		t.Errorf("single-band distribution should have zero entropy, got %f", e)
	}
}
