package contributors

import (
	"context"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Llm is the expensive escalation slot: a language-model classifier that
// only runs on already-suspicious traffic (Medium risk, most detectors
// done) and gets a generous timeout. Without a backend it emits a
// zero-weight availability record so dashboards can tell "not deployed"
// from "never triggered".
type Llm struct {
	base
	model ModelDetector
}

func NewLlm(d Deps) *Llm {
	return &Llm{
		base: newBase(d.Config, "llm", 70, 1500,
			blackboard.RiskThreshold(models.RiskMedium),
			blackboard.DetectorCount(10),
		),
		model: d.Llm,
	}
}

func (l *Llm) Contribute(ctx context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	if l.model == nil {
		c := blackboard.Info(l.name, CatModel, "LLM backend not configured")
		return []models.DetectionContribution{blackboard.WithSignals(c, map[string]any{signals.ModelLlmAvailable: false})}, nil
	}

	s.WriteSignal(signals.ModelLlmAvailable, true)
	out, err := runModel(ctx, l.model, l.name, s)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 && out[0].Reason != "" {
		s.WriteSignal(signals.ModelLlmClass, out[0].Reason)
	}
	return out, nil
}
