package contributors

import (
	"context"
	"fmt"

	"github.com/rawblock/sentinel-engine/internal/aggregate"
	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Heuristic is the learned-model slot in the mid pipeline. When a trained
// ModelDetector is wired it runs that; otherwise a shipped linear scorecard
// over the identity wave's signals fills in. The scorecard is crude on
// purpose — it exists so the model category is never silent, keeping the
// evidence mix stable whether or not a real model is deployed.
type Heuristic struct {
	base
	model ModelDetector
}

func NewHeuristic(d Deps) *Heuristic {
	return &Heuristic{
		base:  newBase(d.Config, "heuristic", 42, 100, blackboard.DetectorCount(5)),
		model: d.Heuristic,
	}
}

func (h *Heuristic) Contribute(ctx context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	if h.model != nil {
		return runModel(ctx, h.model, h.name, s)
	}

	// Shipped scorecard: signed sum over the strongest cheap tells.
	score := 0.0
	if s.SignalBool(signals.UAIsTool) {
		score += 0.35
	}
	if s.SignalBool(signals.UAIsMissing) {
		score += 0.30
	}
	if s.SignalBool(signals.HeaderMissingLanguage) {
		score += 0.15
	}
	if s.SignalBool(signals.IPIsDatacenter) {
		score += 0.15
	}
	if s.SignalBool(signals.AttackDetected) {
		score += 0.35
	}
	if s.SignalBool(signals.HeaderHasCookies) {
		score -= 0.20
	}
	if s.SignalBool(signals.HeaderHasSecChUA) {
		score -= 0.20
	}
	if s.SignalString(signals.UABrowser) != "" && !s.SignalBool(signals.IPIsDatacenter) {
		score -= 0.15
	}

	sigs := map[string]any{signals.ModelHeuristicScore: score}

	switch {
	case score >= h.param("bot_threshold", 0.40):
		c := blackboard.Bot(h.name, CatModel, fmt.Sprintf("scorecard %.2f", score), minf(score, 0.9))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	case score <= h.param("human_threshold", -0.25):
		c := blackboard.Human(h.name, CatModel, fmt.Sprintf("scorecard %.2f", score), minf(-score, 0.9))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}
	return []models.DetectionContribution{blackboard.WithSignals(blackboard.Neutral(h.name, CatModel, fmt.Sprintf("scorecard %.2f inconclusive", score)), sigs)}, nil
}

// runModel adapts a ModelDetector's reasons into ledger contributions.
// Shared with the late and LLM slots.
func runModel(ctx context.Context, model ModelDetector, name string, s *blackboard.State) ([]models.DetectionContribution, error) {
	view := aggregate.Result{
		Probability: s.Score(),
		RiskBand:    models.RiskBandFor(s.Score()),
	}
	reasons, err := model.Detect(ctx, s.Request, view)
	if err != nil {
		return nil, err
	}
	if len(reasons) == 0 {
		return []models.DetectionContribution{blackboard.Info(name, CatModel, "model returned no findings")}, nil
	}

	out := make([]models.DetectionContribution, 0, len(reasons))
	for _, r := range reasons {
		var c models.DetectionContribution
		if r.Impact >= 0 {
			c = blackboard.Bot(name, CatModel, r.Reason, r.Impact)
		} else {
			c = blackboard.Human(name, CatModel, r.Reason, -r.Impact)
		}
		if r.BotType != "" {
			c = blackboard.WithType(c, r.BotType, r.BotName)
		}
		out = append(out, c)
	}
	return out, nil
}
