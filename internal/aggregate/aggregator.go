// Package aggregate fuses the detection ledger into the final verdict.
//
// The fusion is deliberately order-free: aggregating a permuted ledger yields
// the same scalar outputs. The pipeline is
//
//  1. per-category Σ(weight·delta) rollup
//  2. signed score S = Σ category totals, absolute weight W = Σ|weight|
//  3. logistic squash S → probability (0.5 at S=0, monotone, bounded)
//  4. confidence = W / (W + Wref) — more evidence, more confidence
//  5. risk band from fixed thresholds
//  6. primary bot type/name by weight plurality
//  7. verdict clamps: VerifiedGoodBot ≤ 0.1, VerifiedBot ≥ 0.95
package aggregate

import (
	"math"
	"sort"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/config"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Aggregator holds the fusion constants. Both are config-overridable.
type Aggregator struct {
	// WRef is the reference weight for the confidence curve: confidence
	// reaches 0.5 when total absolute evidence weight equals WRef.
	WRef float64
	// DominantWeight is the signed score at which the squash outputs 0.95,
	// chosen so one VerifiedBot-weighted contribution dominates the verdict.
	DominantWeight float64
}

// New builds an aggregator from the detector config.
func New(cfg config.Provider) *Aggregator {
	return &Aggregator{
		WRef:           cfg.Param("aggregator", "confidence_wref", 4.0),
		DominantWeight: cfg.Param("aggregator", "dominant_weight", 3.0),
	}
}

// Result is the scalar view of a ledger at a point in time. The orchestrator
// recomputes it between waves so later triggers observe the running score.
type Result struct {
	Probability       float64
	Confidence        float64
	RiskBand          models.RiskBand
	PrimaryBotType    models.BotType
	PrimaryBotName    string
	CategoryBreakdown map[string]models.CategoryRollup
}

// Score fuses a ledger snapshot. Contributions with non-finite weight or
// delta are skipped rather than poisoning the sums.
func (a *Aggregator) Score(contribs []models.DetectionContribution) Result {
	var signed, absWeight float64
	breakdown := map[string]models.CategoryRollup{}
	topImpact := map[string]float64{}

	hasVerifiedGood := false
	hasVerifiedBad := false

	for _, c := range contribs {
		if !finite(c.Weight) || !finite(c.Delta) || c.Weight < 0 {
			continue
		}
		impact := c.Weight * c.Delta
		signed += impact
		absWeight += c.Weight

		roll := breakdown[c.Category]
		roll.WeightedDelta += impact
		roll.Count++
		if math.Abs(impact) >= topImpact[c.Category] {
			topImpact[c.Category] = math.Abs(impact)
			roll.TopReason = c.Reason
		}
		breakdown[c.Category] = roll

		switch c.Verdict {
		case models.VerdictVerifiedGoodBot:
			hasVerifiedGood = true
		case models.VerdictVerifiedBot:
			hasVerifiedBad = true
		}
	}

	p := a.squash(signed)

	// Authoritative clamps. When both verdicts are somehow present the bot
	// clamp wins: a spoof strong enough to also trip the good-bot path must
	// not be allowed through.
	if hasVerifiedGood {
		p = math.Min(p, 0.1)
	}
	if hasVerifiedBad {
		p = math.Max(p, 0.95)
	}

	confidence := 0.0
	if absWeight > 0 {
		confidence = clamp01(absWeight / (absWeight + a.WRef))
	}

	botType, botName := primaryBot(contribs)

	return Result{
		Probability:       clamp01(p),
		Confidence:        confidence,
		RiskBand:          models.RiskBandFor(clamp01(p)),
		PrimaryBotType:    botType,
		PrimaryBotName:    botName,
		CategoryBreakdown: breakdown,
	}
}

// squash maps the signed score to [0,1] with a logistic curve. Slope is
// derived from DominantWeight: p(DominantWeight) = 0.95, p(0) = 0.5,
// p(-DominantWeight) = 0.05, approximately linear near zero.
func (a *Aggregator) squash(s float64) float64 {
	k := math.Log(19) / a.DominantWeight
	return 1.0 / (1.0 + math.Exp(-k*s))
}

// primaryBot picks the plurality bot type by accumulated weight among typed
// contributions; ties break on the highest single-contribution weight, then
// lexicographically so the result is deterministic.
func primaryBot(contribs []models.DetectionContribution) (models.BotType, string) {
	type tally struct {
		weight    float64
		maxSingle float64
		name      string
		nameW     float64
	}
	acc := map[models.BotType]*tally{}

	for _, c := range contribs {
		if c.BotType == "" || c.BotType == models.BotTypeUnknown {
			continue
		}
		t := acc[c.BotType]
		if t == nil {
			t = &tally{}
			acc[c.BotType] = t
		}
		t.weight += c.Weight
		if c.Weight > t.maxSingle {
			t.maxSingle = c.Weight
		}
		if c.BotName != "" && c.Weight >= t.nameW {
			t.name = c.BotName
			t.nameW = c.Weight
		}
	}

	if len(acc) == 0 {
		return "", ""
	}

	types := make([]models.BotType, 0, len(acc))
	for bt := range acc {
		types = append(types, bt)
	}
	sort.Slice(types, func(i, j int) bool {
		a, b := acc[types[i]], acc[types[j]]
		if a.weight != b.weight {
			return a.weight > b.weight
		}
		if a.maxSingle != b.maxSingle {
			return a.maxSingle > b.maxSingle
		}
		return types[i] < types[j]
	})

	winner := types[0]
	return winner, acc[winner].name
}

// Evidence assembles the authoritative evidence object from the final state.
func (a *Aggregator) Evidence(s *blackboard.State) models.AggregatedEvidence {
	contribs := s.Contributions()
	res := a.Score(contribs)
	sigs := s.SignalsCopy()

	threat, intent := ThreatFromState(s)

	return models.AggregatedEvidence{
		RequestID:             s.RequestID,
		Ledger:                contribs,
		BotProbability:        res.Probability,
		Confidence:            res.Confidence,
		RiskBand:              res.RiskBand,
		PrimaryBotType:        res.PrimaryBotType,
		PrimaryBotName:        res.PrimaryBotName,
		Signals:               sigs,
		TotalProcessingMs:     float64(s.Elapsed().Microseconds()) / 1000.0,
		CategoryBreakdown:     res.CategoryBreakdown,
		ContributingDetectors: sortedCopy(s.CompletedList()),
		FailedDetectors:       sortedCopy(s.FailedList()),
		ThreatScore:           threat,
		ThreatBand:            models.ThreatBandFor(threat),
		IntentCategory:        intent,
	}
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
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
