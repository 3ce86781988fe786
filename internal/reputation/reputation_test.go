package reputation

import (
	"testing"

	"github.com/rawblock/sentinel-engine/internal/config"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

func TestMemoryCache_FastPathPredicates(t *testing.T) {
	c := NewMemoryCache()

	c.Set(models.PatternReputation{
		PatternID: "ip:203.0.113.0/24",
		State:     models.StateConfirmedBad,
		BotScore:  0.95,
		Support:   50,
	})
	c.Set(models.PatternReputation{
		PatternID: "ua:deadbeefdeadbeef",
		State:     models.StateConfirmedGood,
		BotScore:  0.02,
		Support:   3, // below support floor
	})
	c.Set(models.PatternReputation{
		PatternID: "ip:198.51.100.0/24",
		State:     models.StateManuallyAllowed,
	})

	if !c.TryFastAbort("ip:203.0.113.0/24") {
		t.Error("confirmed-bad with high support must fast-abort")
	}
	if c.TryFastAllow("ua:deadbeefdeadbeef") {
		t.Error("confirmed-good below the support floor must not fast-allow")
	}
	if !c.TryFastAllow("ip:198.51.100.0/24") {
		t.Error("manually allowed always fast-allows")
	}
	if c.TryFastAbort("ip:unknown") {
		t.Error("unknown pattern must not fast-abort")
	}
}

func TestMaintainer_PromotionLifecycle(t *testing.T) {
	c := NewMemoryCache()
	m := NewMaintainer(c, config.Static{})

	// A fresh pattern observed as a bot repeatedly: Neutral → Suspect →
	// ConfirmedBad once support crosses the floor.
	for i := 0; i < 15; i++ {
		m.Observe([]string{"ua:bothash"}, 0.95)
	}

	rep, ok := c.Get("ua:bothash")
	if !ok {
		t.Fatal("record should exist")
	}
	if rep.State != models.StateConfirmedBad {
		t.Errorf("state = %s, want ConfirmedBad", rep.State)
	}
	if rep.Support != 15 {
		t.Errorf("support = %d, want 15", rep.Support)
	}
	if rep.BotScore < 0.8 {
		t.Errorf("EMA should converge high: %f", rep.BotScore)
	}
}

func TestMaintainer_DemotionOnDrift(t *testing.T) {
	c := NewMemoryCache()
	m := NewMaintainer(c, config.Static{})

	for i := 0; i < 15; i++ {
		m.Observe([]string{"ip:203.0.113.0/24"}, 0.95)
	}
	// The /24 starts producing clean traffic (dynamic reassignment).
	for i := 0; i < 40; i++ {
		m.Observe([]string{"ip:203.0.113.0/24"}, 0.05)
	}

	rep, _ := c.Get("ip:203.0.113.0/24")
	if rep.State == models.StateConfirmedBad {
		t.Errorf("sustained clean traffic must demote, still %s (score=%f)", rep.State, rep.BotScore)
	}
}

func TestMaintainer_ManualStatesImmutable(t *testing.T) {
	c := NewMemoryCache()
	m := NewMaintainer(c, config.Static{})

	c.Set(models.PatternReputation{
		PatternID: "ip:198.51.100.0/24",
		State:     models.StateManuallyBlocked,
		BotScore:  1.0,
	})
	for i := 0; i < 30; i++ {
		m.Observe([]string{"ip:198.51.100.0/24"}, 0.0)
	}

	rep, _ := c.Get("ip:198.51.100.0/24")
	if rep.State != models.StateManuallyBlocked {
		t.Errorf("observations must never move a manual state, got %s", rep.State)
	}
}

func TestCountryTracker(t *testing.T) {
	ct := NewCountryTracker()

	for i := 0; i < 20; i++ {
		ct.RecordDetection("XX", "scraper", true, 0.9)
	}
	for i := 0; i < 20; i++ {
		ct.RecordDetection("DE", "", false, 0.1)
	}
	ct.RecordDetection("YY", "one-off", true, 1.0) // below min-seen, excluded from top

	if xx := ct.GetCountryBotRate("XX"); xx < 0.5 {
		t.Errorf("XX bot rate should trend high: %f", xx)
	}
	if de := ct.GetCountryBotRate("DE"); de > 0.3 {
		t.Errorf("DE bot rate should trend low: %f", de)
	}
	if unseen := ct.GetCountryBotRate("ZZ"); unseen != 0 {
		t.Errorf("unseen country rate must be 0: %f", unseen)
	}

	top := ct.GetTopBotCountries(1)
	if len(top) != 1 || top[0].Country != "XX" {
		t.Errorf("top offenders = %+v, want XX first", top)
	}
}
