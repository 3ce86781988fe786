package contributors

import (
	"context"
	"fmt"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// HeuristicLate is the corroboration pass: it only wakes once the running
// score has reached Elevated and most of the fleet has reported, then asks
// whether the suspicion is broad or rests on a single evidence category.
// Broad suspicion hardens the verdict; a one-category case gets a
// counterweight so a single noisy detector cannot convict alone.
type HeuristicLate struct {
	base
}

func NewHeuristicLate(d Deps) *HeuristicLate {
	return &HeuristicLate{
		base: newBase(d.Config, "heuristic_late", 65, 100,
			blackboard.RiskThreshold(models.RiskElevated),
			blackboard.DetectorCount(10),
		),
	}
}

func (h *HeuristicLate) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	// Model-category records are excluded: the other model contributors run
	// in the same wave, and counting them would make the tally depend on
	// sibling completion order.
	categories := map[string]bool{}
	for _, c := range s.Contributions() {
		if c.Delta > 0 && c.Weight > 0 && c.Category != CatModel {
			categories[c.Category] = true
		}
	}

	var out []models.DetectionContribution

	switch {
	case len(categories) >= h.intParam("broad_categories", 3):
		out = append(out, blackboard.StrongBot(h.name, CatModel,
			fmt.Sprintf("suspicion corroborated across %d evidence categories", len(categories)),
			h.conf("corroborated", 0.60)))
	case len(categories) == 1:
		out = append(out, blackboard.Human(h.name, CatModel,
			"elevated risk rests on a single evidence category", h.conf("uncorroborated", 0.30)))
	default:
		out = append(out, blackboard.Neutral(h.name, CatModel, "partially corroborated suspicion"))
	}

	// Spoofed-crawler plus payload activity is the worst combination we see;
	// name it explicitly for the ledger.
	if s.SignalBool(signals.BotSpoofed) && s.SignalBool(signals.AttackDetected) {
		c := blackboard.StrongBot(h.name, CatModel, "spoofed crawler identity delivering attack payloads", h.conf("spoof_attack", 0.80))
		out = append(out, blackboard.WithType(c, models.BotTypeMalicious, ""))
	}

	return out, nil
}
