package blackboard

import "github.com/rawblock/sentinel-engine/pkg/models"

// Factory helpers for canonical contributions. Contributors should build
// evidence through these rather than hand-rolling records, so delta signs,
// weights, and verdict flags stay consistent across the fleet.

// Info is a zero-weight observability record: it proves the contributor ran
// without moving the score.
func Info(detector, category, reason string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector,
		Category: category,
		Delta:    0,
		Weight:   0,
		Reason:   reason,
		Verdict:  models.VerdictInfo,
	}
}

// Neutral carries weight but no lean; it raises confidence without moving
// the probability.
func Neutral(detector, category, reason string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector,
		Category: category,
		Delta:    0,
		Weight:   1,
		Reason:   reason,
		Verdict:  models.VerdictNormal,
	}
}

// Human is a human-leaning contribution of the given magnitude.
func Human(detector, category, reason string, confidence float64) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector,
		Category: category,
		Delta:    -clamp01(confidence),
		Weight:   1,
		Reason:   reason,
		Verdict:  models.VerdictNormal,
	}
}

// Bot is a bot-leaning contribution of the given magnitude.
func Bot(detector, category, reason string, confidence float64) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector,
		Category: category,
		Delta:    clamp01(confidence),
		Weight:   1,
		Reason:   reason,
		Verdict:  models.VerdictNormal,
	}
}

// StrongBot is a bot-leaning contribution with double weight, for signals
// that on their own justify an elevated band.
func StrongBot(detector, category, reason string, confidence float64) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector,
		Category: category,
		Delta:    clamp01(confidence),
		Weight:   2,
		Reason:   reason,
		Verdict:  models.VerdictNormal,
	}
}

// StrongHuman is a human-leaning contribution with double weight, for
// signals that on their own justify dropping a band.
func StrongHuman(detector, category, reason string, confidence float64) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector,
		Category: category,
		Delta:    -clamp01(confidence),
		Weight:   2,
		Reason:   reason,
		Verdict:  models.VerdictNormal,
	}
}

// VerifiedBot is the authoritative "this is a bot" record. The aggregator
// clamps the final probability to ≥ 0.95 when one is present.
func VerifiedBot(detector, category, reason string, botType models.BotType, botName string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector,
		Category: category,
		Delta:    1,
		Weight:   3,
		Reason:   reason,
		BotType:  botType,
		BotName:  botName,
		Verdict:  models.VerdictVerifiedBot,
	}
}

// VerifiedGoodBot is the authoritative "this is a welcome bot" record. The
// aggregator clamps the final probability to ≤ 0.1 when one is present.
func VerifiedGoodBot(detector, category, reason string, botType models.BotType, botName string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector,
		Category: category,
		Delta:    -1,
		Weight:   3,
		Reason:   reason,
		BotType:  botType,
		BotName:  botName,
		Verdict:  models.VerdictVerifiedGoodBot,
	}
}

// WithSignals attaches a signal batch to a contribution. The orchestrator
// merges the batch atomically with the append.
func WithSignals(c models.DetectionContribution, sigs map[string]any) models.DetectionContribution {
	c.Signals = sigs
	return c
}

// WithType tags a contribution with a bot classification.
func WithType(c models.DetectionContribution, botType models.BotType, botName string) models.DetectionContribution {
	c.BotType = botType
	c.BotName = botName
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
