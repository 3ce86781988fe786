package aggregate

import (
	"math/rand"
	"testing"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/config"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

func newAgg() *Aggregator {
	return New(config.Static{})
}

func TestScore_EmptyLedger(t *testing.T) {
	res := newAgg().Score(nil)
	if res.Probability != 0.5 {
		t.Errorf("empty ledger probability = %f, want 0.5", res.Probability)
	}
	if res.Confidence != 0 {
		t.Errorf("empty ledger confidence = %f, want 0", res.Confidence)
	}
	if res.RiskBand != models.RiskElevated {
		t.Errorf("p=0.5 maps to Elevated, got %s", res.RiskBand)
	}
}

func TestScore_BoundsAndBands(t *testing.T) {
	a := newAgg()

	// Heavy bot evidence drives probability toward 1 but never past it.
	var contribs []models.DetectionContribution
	for i := 0; i < 20; i++ {
		contribs = append(contribs, blackboard.StrongBot("d", "identity", "x", 1.0))
	}
	res := a.Score(contribs)
	if res.Probability < 0.99 || res.Probability > 1 {
		t.Errorf("probability out of expected range: %f", res.Probability)
	}
	if res.RiskBand != models.RiskCritical {
		t.Errorf("band = %s, want Critical", res.RiskBand)
	}
	if res.Confidence <= 0.5 || res.Confidence > 1 {
		t.Errorf("confidence = %f", res.Confidence)
	}
}

func TestScore_SingleVerifiedBotDominates(t *testing.T) {
	// One VerifiedBot contribution alone must land at ≥ 0.95 — that is what
	// the dominant-weight slope is calibrated for.
	res := newAgg().Score([]models.DetectionContribution{
		blackboard.VerifiedBot("verified_bot", "reputation", "spoof", models.BotTypeMalicious, "Spoofed-Googlebot"),
	})
	if res.Probability < 0.95 {
		t.Errorf("VerifiedBot must clamp probability ≥ 0.95, got %f", res.Probability)
	}
	if res.PrimaryBotType != models.BotTypeMalicious || res.PrimaryBotName != "Spoofed-Googlebot" {
		t.Errorf("primary bot = %s/%s", res.PrimaryBotType, res.PrimaryBotName)
	}
}

func TestScore_VerifiedGoodBotClamp(t *testing.T) {
	// Even stacked against bot-leaning evidence, VerifiedGoodBot caps at 0.1.
	contribs := []models.DetectionContribution{
		blackboard.Bot("useragent", "identity", "bot ua", 0.9),
		blackboard.Bot("header", "identity", "few headers", 0.7),
		blackboard.VerifiedGoodBot("verified_bot", "reputation", "FCrDNS ok", models.BotTypeSearchEngine, "Googlebot"),
	}
	res := newAgg().Score(contribs)
	if res.Probability > 0.1 {
		t.Errorf("VerifiedGoodBot must clamp probability ≤ 0.1, got %f", res.Probability)
	}
	if res.RiskBand != models.RiskNone {
		t.Errorf("band = %s, want None", res.RiskBand)
	}
}

func TestScore_BothVerdicts_BotWins(t *testing.T) {
	contribs := []models.DetectionContribution{
		blackboard.VerifiedGoodBot("a", "reputation", "allow", models.BotTypeSearchEngine, "G"),
		blackboard.VerifiedBot("b", "reputation", "abort", models.BotTypeMalicious, "M"),
	}
	res := newAgg().Score(contribs)
	if res.Probability < 0.95 {
		t.Errorf("conflicting verdicts must resolve toward bot, got %f", res.Probability)
	}
}

func TestScore_PermutationInvariant(t *testing.T) {
	contribs := []models.DetectionContribution{
		blackboard.Bot("a", "identity", "1", 0.8),
		blackboard.Human("b", "identity", "2", 0.4),
		blackboard.StrongBot("c", "behavioral", "3", 0.6),
		blackboard.Neutral("d", "protocol", "4"),
		blackboard.Info("e", "model", "5"),
		blackboard.Bot("f", "payload", "6", 0.3),
	}
	a := newAgg()
	want := a.Score(contribs)

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]models.DetectionContribution, len(contribs))
		copy(shuffled, contribs)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := a.Score(shuffled)
		if got.Probability != want.Probability || got.Confidence != want.Confidence || got.RiskBand != want.RiskBand {
			t.Fatalf("permutation changed scalar outputs: %+v vs %+v", got, want)
		}
	}
}

func TestScore_MonotoneInDelta(t *testing.T) {
	a := newAgg()
	base := []models.DetectionContribution{
		blackboard.Bot("a", "identity", "1", 0.2),
		blackboard.Human("b", "identity", "2", 0.5),
	}
	prev := a.Score(base).Probability
	for _, delta := range []float64{0.3, 0.5, 0.7, 0.9, 1.0} {
		bumped := make([]models.DetectionContribution, len(base))
		copy(bumped, base)
		bumped[0].Delta = delta
		p := a.Score(bumped).Probability
		if p < prev {
			t.Errorf("increasing a bot-leaning delta decreased probability: %f -> %f", prev, p)
		}
		prev = p
	}
}

func TestScore_NonFiniteSkipped(t *testing.T) {
	contribs := []models.DetectionContribution{
		{Detector: "bad", Category: "x", Delta: 1, Weight: inf()},
		blackboard.Bot("good", "identity", "ok", 0.5),
	}
	res := newAgg().Score(contribs)
	if res.Probability <= 0.5 || res.Probability >= 1 {
		t.Errorf("non-finite weight must be skipped, got p=%f", res.Probability)
	}
}

func inf() float64 {
	v := 1.0
	for i := 0; i < 400; i++ {
		v *= 10
	}
	return v
}

func TestScore_CategoryBreakdown(t *testing.T) {
	contribs := []models.DetectionContribution{
		blackboard.Bot("a", "identity", "small", 0.2),
		blackboard.StrongBot("b", "identity", "big", 0.9),
		blackboard.Human("c", "behavioral", "calm", 0.4),
	}
	res := newAgg().Score(contribs)

	id := res.CategoryBreakdown["identity"]
	if id.Count != 2 {
		t.Errorf("identity count = %d, want 2", id.Count)
	}
	if id.TopReason != "big" {
		t.Errorf("top reason = %q, want big", id.TopReason)
	}
	behav := res.CategoryBreakdown["behavioral"]
	if behav.WeightedDelta >= 0 {
		t.Errorf("behavioral rollup should be human-leaning: %f", behav.WeightedDelta)
	}
}

func TestThreatFromSignals(t *testing.T) {
	cases := []struct {
		name     string
		sigs     map[string]any
		wantCat  models.IntentCategory
		minScore float64
	}{
		{"clean browsing", map[string]any{}, models.IntentBrowsing, 0},
		{"attack payload", map[string]any{"attack.detected": true, "attack.hit_count": 5}, models.IntentAttacking, 0.9},
		{"404 scan", map[string]any{"response.scan_pattern": true, "response.404_count": 20}, models.IntentScanning, 0.7},
		{"auth probing", map[string]any{"response.auth_failures": 4}, models.IntentReconnaissance, 0.4},
	}
	for _, tc := range cases {
		score, cat := ThreatFromSignals(tc.sigs)
		if cat != tc.wantCat {
			t.Errorf("%s: category = %s, want %s", tc.name, cat, tc.wantCat)
		}
		if score < tc.minScore {
			t.Errorf("%s: score = %f, want ≥ %f", tc.name, score, tc.minScore)
		}
	}
}

func TestThreatFromNeighbors(t *testing.T) {
	_, _, ok := ThreatFromNeighbors(nil)
	if ok {
		t.Error("empty neighbor set must report not-ok")
	}

	score, cat, ok := ThreatFromNeighbors([]IntentNeighbor{
		{Distance: 0.1, ThreatScore: 0.9, Category: models.IntentAttacking},
		{Distance: 0.2, ThreatScore: 0.8, Category: models.IntentAttacking},
		{Distance: 0.9, ThreatScore: 0.1, Category: models.IntentBrowsing},
	})
	if !ok || cat != models.IntentAttacking {
		t.Errorf("neighbors should vote attacking, got %s ok=%v", cat, ok)
	}
	if score < 0.5 {
		t.Errorf("close attacking neighbors should dominate: %f", score)
	}
}
