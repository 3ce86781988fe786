package contributors

import (
	"context"
	"fmt"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/reputation"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// ReputationBias pulls the long-horizon history for the signature from the
// time-series store and leans the verdict toward what this client has been
// over days, not milliseconds. Unlike the fast path it never decides alone;
// it only biases.
type ReputationBias struct {
	base
	history reputation.TimeSeriesProvider
}

func NewReputationBias(d Deps) *ReputationBias {
	return &ReputationBias{
		base:    newBase(d.Config, "reputation_bias", 45, 200, blackboard.DetectorCount(5)),
		history: d.TimeSeries,
	}
}

func (r *ReputationBias) Contribute(ctx context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	if r.history == nil {
		return []models.DetectionContribution{blackboard.Info(r.name, CatReputation, "time-series store not configured")}, nil
	}

	req := s.Request
	stats, err := r.history.GetReputation(ctx, patterns.Signature(req.ClientIP, req.UserAgent()))
	if err != nil {
		return []models.DetectionContribution{blackboard.Info(r.name, CatReputation, "history lookup failed: "+err.Error())}, nil
	}

	minHits := int64(r.intParam("min_hits", 20))
	if stats.HitCount < minHits {
		return []models.DetectionContribution{blackboard.Info(r.name, CatReputation, "insufficient history")}, nil
	}

	sigs := map[string]any{signals.RepHistoryRatio: stats.BotRatio}

	switch {
	case stats.BotRatio >= r.param("bot_ratio", 0.80):
		c := blackboard.StrongBot(r.name, CatReputation, fmt.Sprintf("%.0f%% of %d past requests judged bot", stats.BotRatio*100, stats.HitCount), r.conf("bad_history", 0.70))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	case stats.BotRatio <= r.param("human_ratio", 0.10) && stats.DaysActive >= r.intParam("min_days", 2):
		c := blackboard.Human(r.name, CatReputation, fmt.Sprintf("clean record across %d days", stats.DaysActive), r.conf("good_history", 0.40))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	case stats.LastHourVelocity >= r.param("hot_velocity", 500):
		c := blackboard.Bot(r.name, CatReputation, fmt.Sprintf("%.0f requests in the trailing hour", stats.LastHourVelocity), r.conf("velocity", 0.55))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}
	return []models.DetectionContribution{blackboard.WithSignals(blackboard.Neutral(r.name, CatReputation, "mixed long-term history"), sigs)}, nil
}
