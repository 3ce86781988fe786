package contributors

import (
	"context"
	"fmt"

	"github.com/rawblock/sentinel-engine/internal/aggregate"
	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Intent scores what the session is DOING, orthogonally to whether the
// client is automated. With a known-intent index configured it matches the
// session against labeled precedents; otherwise the rule-based mapping over
// attack and response signals applies. It emits only an Info record — the
// threat score never moves bot probability, by contract.
type Intent struct {
	base
	index aggregate.IntentSearch
}

func NewIntent(d Deps) *Intent {
	return &Intent{
		base:  newBase(d.Config, "intent", 60, 150, blackboard.DetectorCount(8)),
		index: d.Intent,
	}
}

// intentVector embeds the session's activity shape for the known-intent
// index: what was touched and what came back, not who did it.
func intentVector(s *blackboard.State) []float64 {
	b2f := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	return []float64{
		b2f(s.SignalBool(signals.AttackDetected)),
		minf(float64(s.SignalInt(signals.AttackHitCount))/10.0, 1.0),
		minf(float64(s.SignalInt(signals.Response404Count))/20.0, 1.0),
		b2f(s.SignalBool(signals.ResponseScanPattern)),
		minf(float64(s.SignalInt(signals.ResponseHoneypot))/3.0, 1.0),
		minf(float64(s.SignalInt(signals.AtoAuthFailures))/5.0, 1.0),
		b2f(s.SignalBool(signals.AtoDetected)),
		b2f(s.SignalBool(signals.WaveSequentialScan)),
		minf(s.SignalFloat(signals.WavePathDiversity), 1.0),
	}
}

func (i *Intent) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	var (
		score float64
		cat   models.IntentCategory
	)

	if i.index != nil {
		neighbors := i.index.FindSimilar(intentVector(s), i.intParam("top_k", 10), i.param("min_similarity", 0.75))
		if sc, c, ok := aggregate.ThreatFromNeighbors(neighbors); ok {
			score, cat = sc, c
		}
	}
	if cat == "" {
		score, cat = aggregate.ThreatFromSignals(s.SignalsCopy())
	}

	sigs := map[string]any{
		signals.IntentThreatScore: score,
		signals.IntentCategoryKey: string(cat),
	}
	c := blackboard.Info(i.name, CatIntent, fmt.Sprintf("session intent %s (threat %.2f)", cat, score))
	return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
}
