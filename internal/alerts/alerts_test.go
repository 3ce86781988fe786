package alerts

import (
	"testing"

	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

func req() *models.RequestSnapshot {
	return &models.RequestSnapshot{
		Method:   "GET",
		Path:     "/wp-admin",
		ClientIP: "203.0.113.7",
	}
}

// Verdicts below High never alert; a High-band attacker escalates to
// critical.
func TestEmitFromEvidence_SeverityGating(t *testing.T) {
	var got []Alert
	am := NewManager(func(a Alert) { got = append(got, a) })

	am.EmitFromEvidence(req(), "sig", models.AggregatedEvidence{
		RiskBand:       models.RiskElevated,
		BotProbability: 0.5,
		Signals:        map[string]any{},
	})
	if len(got) != 0 {
		t.Fatalf("Elevated band must not alert, got %d alerts", len(got))
	}

	am.EmitFromEvidence(req(), "sig", models.AggregatedEvidence{
		RiskBand:       models.RiskHigh,
		BotProbability: 0.8,
		ThreatBand:     models.ThreatNone,
		Signals:        map[string]any{},
	})
	if len(got) != 1 || got[0].Severity != "high" {
		t.Fatalf("High band scraper should alert at high severity, got %+v", got)
	}

	am.EmitFromEvidence(req(), "sig", models.AggregatedEvidence{
		RiskBand:       models.RiskHigh,
		BotProbability: 0.85,
		ThreatBand:     models.ThreatHigh,
		Signals:        map[string]any{signals.AttackDetected: true},
	})
	if len(got) != 2 || got[1].Severity != "critical" {
		t.Fatalf("High band with High threat should escalate to critical, got %+v", got[1])
	}
	if got[1].AlertType != "attack_detected" {
		t.Errorf("AlertType = %s, want attack_detected", got[1].AlertType)
	}
}

func TestEmitFromEvidence_TypeSelection(t *testing.T) {
	am := NewManager(nil)

	cases := []struct {
		name     string
		sigs     map[string]any
		wantType string
	}{
		{"fast path abort wins", map[string]any{signals.RepFastPath: "abort", signals.AttackDetected: true}, "fast_path_abort"},
		{"spoof plus attack is compound", map[string]any{signals.BotSpoofed: true, signals.AttackDetected: true}, "compound"},
		{"stuffing", map[string]any{signals.AtoDetected: true}, "credential_stuffing"},
		{"spoof alone", map[string]any{signals.BotSpoofed: true}, "spoofed_crawler"},
		{"plain high risk", map[string]any{}, "high_risk"},
	}

	for _, tc := range cases {
		am.EmitFromEvidence(req(), "sig", models.AggregatedEvidence{
			RiskBand: models.RiskCritical,
			Signals:  tc.sigs,
		})
		recent := am.GetRecentAlerts(1)
		if len(recent) != 1 || recent[0].AlertType != tc.wantType {
			t.Errorf("%s: AlertType = %v, want %s", tc.name, recent, tc.wantType)
		}
	}
}

func TestRecentAlerts_OrderAndFilter(t *testing.T) {
	am := NewManager(nil)

	am.EmitAlert(Alert{Severity: "low", AlertType: "a", Title: "first"})
	am.EmitAlert(Alert{Severity: "critical", AlertType: "b", Title: "second"})
	am.EmitAlert(Alert{Severity: "high", AlertType: "c", Title: "third"})

	recent := am.GetRecentAlerts(2)
	if len(recent) != 2 || recent[0].Title != "third" || recent[1].Title != "second" {
		t.Fatalf("expected newest-first [third second], got %+v", recent)
	}

	highPlus := am.GetAlertsBySeverity("high")
	if len(highPlus) != 2 {
		t.Fatalf("expected 2 alerts at high or above, got %d", len(highPlus))
	}

	for _, a := range am.GetRecentAlerts(0) {
		if a.ID == "" || a.Timestamp.IsZero() {
			t.Errorf("alert missing ID or timestamp: %+v", a)
		}
	}
}
