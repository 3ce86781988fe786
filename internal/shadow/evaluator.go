package shadow

import (
	"math"
	"sync"

	"github.com/rawblock/sentinel-engine/internal/metrics"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Evaluator accumulates production/candidate verdict pairs and computes
// structural agreement between the two banding schemes. ARI and VI measure
// whether the candidate groups traffic the same way production does, even
// when the band names shift; the divergence rate counts outright band moves.
type Evaluator struct {
	mu         sync.Mutex
	production []int
	candidate  []int
	divergence int
	deltaSum   float64
	maxPairs   int
}

// Report is the accumulated drift picture for one candidate.
type Report struct {
	TotalRuns      int     `json:"totalRuns"`
	Divergences    int     `json:"divergences"`
	DivergenceRate float64 `json:"divergenceRate"`
	AvgDelta       float64 `json:"avgDelta"` // mean candidate-minus-production probability
	ARI            float64 `json:"ari"`
	VI             float64 `json:"vi"`
}

func NewEvaluator() *Evaluator {
	return &Evaluator{maxPairs: 100000}
}

// Record adds one verdict pair to the evaluation window. The window is
// bounded; once full the oldest half is dropped so long shadow runs keep a
// recent view.
func (e *Evaluator) Record(r Result) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.production = append(e.production, bandIndex(r.ProductionBand))
	e.candidate = append(e.candidate, bandIndex(r.CandidateBand))
	e.deltaSum += r.CandidateProbability - r.ProductionProbability
	if r.Diverged() {
		e.divergence++
	}

	if len(e.production) > e.maxPairs {
		half := len(e.production) / 2
		e.production = append([]int(nil), e.production[half:]...)
		e.candidate = append([]int(nil), e.candidate[half:]...)
	}
}

// Report computes the current agreement metrics.
func (e *Evaluator) Report() Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.production)
	rep := Report{TotalRuns: n, Divergences: e.divergence}
	if n == 0 {
		return rep
	}
	rep.DivergenceRate = float64(e.divergence) / float64(n)
	rep.AvgDelta = e.deltaSum / float64(n)
	rep.ARI = metrics.AdjustedRandIndex(e.production, e.candidate)
	rep.VI = metrics.VariationOfInformation(e.production, e.candidate)
	return rep
}

// Entropy calculates the Shannon entropy of a band distribution, in bits.
// A candidate that collapses most traffic into one band shows up here before
// the pairwise metrics move.
func Entropy(bandCounts map[models.RiskBand]int) float64 {
	total := 0
	for _, c := range bandCounts {
		total += c
	}
	if total == 0 {
		return 0
	}
	var ent float64
	for _, count := range bandCounts {
		if count == 0 {
			continue
		}
		p := float64(count) / float64(total)
		ent -= p * math.Log2(p)
	}
	return ent
}

func bandIndex(b models.RiskBand) int {
	switch b {
	case models.RiskNone:
		return 0
	case models.RiskLow:
		return 1
	case models.RiskElevated:
		return 2
	case models.RiskMedium:
		return 3
	case models.RiskHigh:
		return 4
	default:
		return 5
	}
}
