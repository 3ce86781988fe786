package aggregate

import (
	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Threat scoring is orthogonal to bot probability: it describes what the
// session is doing, not who is doing it. A verified crawler politely walking
// the sitemap scores near zero; a human probing /wp-admin by hand does not.
//
// When the intent contributor ran, its signals carry the authoritative score
// (weighted similarity against a known-intent index when one is configured).
// Otherwise this rule-based mapping from attack/response signals applies.

// IntentNeighbor is one hit from a known-intent similarity index.
type IntentNeighbor struct {
	Distance    float64
	ThreatScore float64
	Category    models.IntentCategory
}

// IntentSearch is the pluggable known-intent index contract.
type IntentSearch interface {
	FindSimilar(intentVector []float64, topK int, minSimilarity float64) []IntentNeighbor
}

// ThreatFromState reads the intent contributor's verdict off the blackboard,
// falling back to the rule-based mapping when the contributor did not run.
func ThreatFromState(s *blackboard.State) (float64, models.IntentCategory) {
	if s.SignalExists(signals.IntentThreatScore) {
		score := s.SignalFloat(signals.IntentThreatScore)
		cat := models.IntentCategory(s.SignalString(signals.IntentCategoryKey))
		if cat == "" {
			cat = models.IntentBrowsing
		}
		return clamp01(score), cat
	}
	return ThreatFromSignals(s.SignalsCopy())
}

// ThreatFromSignals is the rule-based fallback: a coarse mapping from
// attack-payload and response-feedback signals onto
// {browsing, scanning, reconnaissance, attacking}.
func ThreatFromSignals(sigs map[string]any) (float64, models.IntentCategory) {
	attack := boolSig(sigs, signals.AttackDetected)
	hits := intSig(sigs, signals.AttackHitCount)
	notFound := intSig(sigs, signals.Response404Count)
	scanPattern := boolSig(sigs, signals.ResponseScanPattern)
	honeypot := intSig(sigs, signals.ResponseHoneypot)
	authFailures := intSig(sigs, signals.ResponseAuthFailures)
	sequential := boolSig(sigs, signals.WaveSequentialScan)
	ato := boolSig(sigs, signals.AtoDetected)

	switch {
	case attack && hits >= 3, honeypot > 0 && attack, ato:
		return 0.95, models.IntentAttacking
	case attack:
		return 0.85, models.IntentAttacking
	case scanPattern && notFound >= 10:
		return 0.75, models.IntentScanning
	case scanPattern, notFound >= 5:
		return 0.6, models.IntentScanning
	case authFailures >= 3, sequential:
		return 0.45, models.IntentReconnaissance
	case notFound >= 2:
		return 0.25, models.IntentReconnaissance
	default:
		return 0.05, models.IntentBrowsing
	}
}

// ThreatFromNeighbors computes the similarity-weighted threat average from a
// known-intent index result set. Returns ok=false when the set is empty so
// callers can fall back to the rule-based mapping.
func ThreatFromNeighbors(neighbors []IntentNeighbor) (float64, models.IntentCategory, bool) {
	if len(neighbors) == 0 {
		return 0, models.IntentBrowsing, false
	}

	var weightSum, scoreSum float64
	votes := map[models.IntentCategory]float64{}
	for _, n := range neighbors {
		// Closer neighbors dominate: weight = 1/(1+distance).
		w := 1.0 / (1.0 + n.Distance)
		weightSum += w
		scoreSum += w * n.ThreatScore
		votes[n.Category] += w
	}

	best := models.IntentBrowsing
	bestW := -1.0
	for cat, w := range votes {
		if w > bestW || (w == bestW && cat < best) {
			best = cat
			bestW = w
		}
	}
	return clamp01(scoreSum / weightSum), best, true
}

func boolSig(sigs map[string]any, key string) bool {
	b, _ := sigs[key].(bool)
	return b
}

func intSig(sigs map[string]any, key string) int {
	switch v := sigs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
