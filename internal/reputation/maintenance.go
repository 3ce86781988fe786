package reputation

import (
	"log"
	"math"

	"github.com/rawblock/sentinel-engine/internal/config"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Maintainer applies observed verdicts back onto pattern reputations with
// exponential-moving-average promotion rules:
//
//	score' = α·observed + (1-α)·score
//
// Promotion to ConfirmedBad / ConfirmedGood requires both a decisive score
// and enough support; demotion back to Suspect/Neutral happens symmetrically
// when the EMA drifts. Manual states are never touched.
type Maintainer struct {
	cache Cache

	alpha         float64
	badThreshold  float64
	goodThreshold float64
	minSupport    int
}

// NewMaintainer builds the maintenance service around a cache.
func NewMaintainer(cache Cache, cfg config.Provider) *Maintainer {
	return &Maintainer{
		cache:         cache,
		alpha:         cfg.Param("reputation", "ema_alpha", 0.2),
		badThreshold:  cfg.Param("reputation", "bad_threshold", 0.8),
		goodThreshold: cfg.Param("reputation", "good_threshold", 0.2),
		minSupport:    cfg.IntParam("reputation", "min_support", 10),
	}
}

// Observe folds one request's verdict into the reputations of every pattern
// the request matched. Called by the orchestrator after aggregation.
func (m *Maintainer) Observe(patternIDs []string, botProbability float64) {
	for _, id := range patternIDs {
		if id == "" {
			continue
		}
		m.observeOne(id, botProbability)
	}
}

func (m *Maintainer) observeOne(patternID string, observed float64) {
	rep, ok := m.cache.Get(patternID)
	if !ok {
		rep = models.PatternReputation{
			PatternID:      patternID,
			State:          models.StateNeutral,
			BotScore:       observed,
			Support:        1,
			FastPathWeight: 1.0,
		}
		m.cache.Set(rep)
		return
	}

	// Manual states are operator decisions; observations never move them.
	if rep.State == models.StateManuallyAllowed || rep.State == models.StateManuallyBlocked {
		rep.Support++
		m.cache.Set(rep)
		return
	}

	rep.BotScore = m.alpha*observed + (1-m.alpha)*rep.BotScore
	rep.Support++

	prev := rep.State
	rep.State = m.classify(rep)
	if rep.State != prev {
		log.Printf("[Reputation] %s: %s -> %s (score=%.3f support=%d)",
			patternID, prev, rep.State, rep.BotScore, rep.Support)
	}

	// Fast-path weight grows with decisiveness of the score.
	rep.FastPathWeight = 1.0 + math.Abs(rep.BotScore-0.5)

	m.cache.Set(rep)
}

func (m *Maintainer) classify(rep models.PatternReputation) models.ReputationState {
	switch {
	case rep.BotScore >= m.badThreshold && rep.Support >= m.minSupport:
		return models.StateConfirmedBad
	case rep.BotScore <= m.goodThreshold && rep.Support >= m.minSupport:
		return models.StateConfirmedGood
	case rep.BotScore >= m.badThreshold:
		return models.StateSuspect
	default:
		return models.StateNeutral
	}
}
