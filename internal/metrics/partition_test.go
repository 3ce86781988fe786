package metrics

import (
	"math"
	"testing"
)

func TestAdjustedRandIndex_IdenticalBanding(t *testing.T) {
	production := []int{0, 0, 1, 1, 2, 2}
	candidate := []int{0, 0, 1, 1, 2, 2}

	ari := AdjustedRandIndex(production, candidate)

	if math.Abs(ari-1.0) > 0.01 {
		t.Errorf("Expected ARI=1.0 for identical banding. Got: %f", ari)
	}
}

func TestAdjustedRandIndex_RelabeledBanding(t *testing.T) {
	// Same grouping under different label names is still a perfect match.
	production := []int{0, 0, 1, 1, 2, 2}
	candidate := []int{5, 5, 3, 3, 0, 0}

	ari := AdjustedRandIndex(production, candidate)

	if math.Abs(ari-1.0) > 0.01 {
		t.Errorf("Expected ARI=1.0 for relabeled banding. Got: %f", ari)
	}
}

func TestAdjustedRandIndex_Reshuffled(t *testing.T) {
	production := []int{0, 0, 0, 1, 1, 1}
	candidate := []int{0, 1, 0, 1, 0, 1}

	ari := AdjustedRandIndex(production, candidate)

	if ari > 0.5 {
		t.Errorf("Expected ARI near 0 when the candidate reshuffles the population. Got: %f", ari)
	}
}

func TestVariationOfInformation_Identical(t *testing.T) {
	production := []int{0, 0, 1, 1, 2, 2}
	candidate := []int{0, 0, 1, 1, 2, 2}

	vi := VariationOfInformation(production, candidate)

	if vi > 0.01 {
		t.Errorf("Expected VI=0.0 for identical banding. Got: %f", vi)
	}
}

func TestVariationOfInformation_Reshuffled(t *testing.T) {
	production := []int{0, 0, 0, 1, 1, 1}
	candidate := []int{0, 1, 0, 1, 0, 1}

	vi := VariationOfInformation(production, candidate)

	if vi < 0.1 {
		t.Errorf("Expected VI > 0 for reshuffled banding. Got: %f", vi)
	}
}
