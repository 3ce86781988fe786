package contributors

import (
	"context"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/botlist"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// VerifiedBot settles crawler identity claims. A UA claiming Googlebot from
// Google's published ranges (or passing forward-confirmed reverse DNS) is a
// verified good bot and ends the investigation; the same claim from anywhere
// else is a spoof and near-conclusive evidence of malice — honest clients do
// not impersonate crawlers.
type VerifiedBot struct {
	base
	registry botlist.Registry
}

func NewVerifiedBot(d Deps) *VerifiedBot {
	return &VerifiedBot{
		base:     newBase(d.Config, "verified_bot", 5, 800),
		registry: d.Registry,
	}
}

func (v *VerifiedBot) Contribute(ctx context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	if v.registry == nil {
		return []models.DetectionContribution{blackboard.Info(v.name, CatReputation, "bot registry not configured")}, nil
	}

	req := s.Request
	ver, err := v.registry.VerifyBot(ctx, req.UserAgent(), req.ClientIP)
	if err != nil {
		// DNS trouble is not evidence either way; record the claim and move on.
		if ver != nil {
			s.WriteSignals(map[string]any{signals.BotClaimed: ver.BotName})
		}
		return []models.DetectionContribution{blackboard.Info(v.name, CatReputation, "verification inconclusive: "+err.Error())}, nil
	}
	if ver == nil {
		return []models.DetectionContribution{blackboard.Info(v.name, CatReputation, "no crawler identity claimed")}, nil
	}

	sigs := map[string]any{
		signals.BotClaimed:  ver.BotName,
		signals.BotVerified: ver.IsVerified,
	}

	if ver.IsVerified {
		sigs[signals.BotVerifiedName] = ver.BotName
		botType := models.BotTypeGoodBot
		if sr, ok := v.registry.(interface{ IsSearchBot(string) bool }); ok && sr.IsSearchBot(ver.BotName) {
			botType = models.BotTypeSearchEngine
		}
		c := blackboard.VerifiedGoodBot(v.name, CatReputation, ver.BotName+" verified via "+ver.VerificationMethod, botType, ver.BotName)
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}

	sigs[signals.BotSpoofed] = true
	c := blackboard.StrongBot(v.name, CatReputation, "spoofed "+ver.BotName+" identity", v.conf("spoofed_bot", 0.95))
	return []models.DetectionContribution{blackboard.WithSignals(blackboard.WithType(c, models.BotTypeMalicious, "spoofed-"+ver.BotName), sigs)}, nil
}
