package contributors

import (
	"context"
	"fmt"
	"strings"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Similarity embeds the request into a small feature vector and asks the
// ANN index what past requests looked like it. A neighborhood of confirmed
// bots is evidence even when this request has no direct tells.
type Similarity struct {
	base
	index SimilaritySearch
}

func NewSimilarity(d Deps) *Similarity {
	return &Similarity{
		base:  newBase(d.Config, "similarity", 50, 150, blackboard.DetectorCount(8)),
		index: d.Similarity,
	}
}

// featureVector flattens the request plus the identity wave's signals into
// a fixed-width vector. Dimension order is part of the index contract; new
// features append, never reorder.
func featureVector(s *blackboard.State) []float64 {
	req := s.Request
	b2f := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	return []float64{
		minf(float64(req.HeaderCount())/20.0, 1.0),
		minf(float64(len(req.UserAgent()))/300.0, 1.0),
		b2f(s.SignalBool(signals.UAIsTool)),
		b2f(s.SignalBool(signals.UAIsBot)),
		b2f(s.SignalString(signals.UABrowser) != ""),
		b2f(s.SignalBool(signals.HeaderMissingLanguage)),
		b2f(s.SignalBool(signals.HeaderHasCookies)),
		b2f(s.SignalBool(signals.IPIsDatacenter)),
		b2f(s.SignalBool(signals.AttackDetected)),
		minf(float64(strings.Count(req.Path, "/"))/10.0, 1.0),
		minf(s.SignalFloat(signals.WaveTimingCV)/3.0, 1.0),
		minf(float64(s.SignalInt(signals.WaveRequestCount))/100.0, 1.0),
	}
}

func (m *Similarity) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	if m.index == nil {
		return []models.DetectionContribution{blackboard.Info(m.name, CatModel, "similarity index not configured")}, nil
	}
	if m.index.Count() < m.intParam("min_index_size", 100) {
		return []models.DetectionContribution{blackboard.Info(m.name, CatModel, "similarity index still warming up")}, nil
	}

	neighbors, err := m.index.FindSimilar(featureVector(s), m.intParam("top_k", 10), m.param("min_similarity", 0.80), "request")
	if err != nil {
		return []models.DetectionContribution{blackboard.Info(m.name, CatModel, "index query failed: "+err.Error())}, nil
	}
	if len(neighbors) == 0 {
		return []models.DetectionContribution{blackboard.Info(m.name, CatModel, "no sufficiently similar precedent")}, nil
	}

	bots := 0
	var distSum float64
	for _, n := range neighbors {
		if n.WasBot {
			bots++
		}
		distSum += n.Distance
	}
	botFraction := float64(bots) / float64(len(neighbors))
	meanDist := distSum / float64(len(neighbors))

	sigs := map[string]any{
		signals.SimNeighborCount: len(neighbors),
		signals.SimMajorityBot:   botFraction >= 0.5,
		signals.SimMeanDistance:  meanDist,
	}

	switch {
	case botFraction >= m.param("bot_majority", 0.70):
		c := blackboard.StrongBot(m.name, CatModel, fmt.Sprintf("%d/%d nearest precedents were bots", bots, len(neighbors)), m.conf("bot_neighborhood", 0.75))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	case botFraction <= m.param("human_majority", 0.30):
		c := blackboard.Human(m.name, CatModel, fmt.Sprintf("%d/%d nearest precedents were human", len(neighbors)-bots, len(neighbors)), m.conf("human_neighborhood", 0.40))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}
	return []models.DetectionContribution{blackboard.WithSignals(blackboard.Neutral(m.name, CatModel, "mixed precedent neighborhood"), sigs)}, nil
}
