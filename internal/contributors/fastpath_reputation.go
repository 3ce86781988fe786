package contributors

import (
	"context"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/reputation"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// FastPathReputation consults the pattern reputation cache before anything
// else runs. Only the IP dimension may short-circuit the pipeline: an address
// with enough confirmed history gets the authoritative verdict and the
// orchestrator early-exits on it. A UA string is shared by every client that
// sends it, so a confirmed-bad UA (or combined) pattern leans the score hard
// but still lets the rest of the fleet weigh in.
type FastPathReputation struct {
	base
	cache reputation.Cache
}

func NewFastPathReputation(d Deps) *FastPathReputation {
	return &FastPathReputation{
		base:  newBase(d.Config, "fastpath_reputation", 3, 20),
		cache: d.Reputation,
	}
}

func (f *FastPathReputation) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	if f.cache == nil {
		return []models.DetectionContribution{blackboard.Info(f.name, CatReputation, "reputation cache not configured")}, nil
	}

	req := s.Request
	combinedID := patterns.CombinedPatternID(req.UserAgent(), req.ClientIP, req.Path)
	uaID := patterns.UAPatternID(req.UserAgent())
	ipID := patterns.IPPatternID(req.ClientIP)

	sigs := map[string]any{}
	if rep, ok := f.cache.Get(uaID); ok {
		sigs[signals.RepUAState] = rep.State.String()
	}
	if rep, ok := f.cache.Get(ipID); ok {
		sigs[signals.RepIPState] = rep.State.String()
	}
	if _, ok := f.cache.Get(combinedID); ok {
		sigs[signals.RepCombinedHit] = true
	}

	// Abort beats allow: a pattern that earned a block stays blocked even if
	// a broader pattern it belongs to looks clean.
	if f.cache.TryFastAbort(ipID) {
		sigs[signals.RepFastPath] = "abort"
		c := blackboard.VerifiedBot(f.name, CatReputation, "confirmed-bad address pattern "+ipID, models.BotTypeMalicious, "")
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}
	for _, id := range []string{combinedID, uaID} {
		if f.cache.TryFastAbort(id) {
			c := blackboard.StrongBot(f.name, CatReputation, "confirmed-bad pattern "+id, f.conf("pattern_abort", 0.90))
			return []models.DetectionContribution{blackboard.WithSignals(blackboard.WithType(c, models.BotTypeMalicious, ""), sigs)}, nil
		}
	}
	if f.cache.TryFastAllow(ipID) {
		sigs[signals.RepFastPath] = "allow"
		c := blackboard.VerifiedGoodBot(f.name, CatReputation, "confirmed-good address pattern "+ipID, models.BotTypeGoodBot, "")
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}
	for _, id := range []string{combinedID, uaID} {
		if f.cache.TryFastAllow(id) {
			c := blackboard.StrongHuman(f.name, CatReputation, "confirmed-good pattern "+id, f.conf("pattern_allow", 0.85))
			return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
		}
	}

	return []models.DetectionContribution{
		blackboard.WithSignals(blackboard.Info(f.name, CatReputation, "no fast-path reputation"), sigs),
	}, nil
}
