package alerts

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Alert & Webhook System
//
// Structured alert emission for SOC operations. Alerts are:
//   1. Broadcast via WebSocket to connected dashboards
//   2. Pushed to registered webhook endpoints (Slack, Discord, SIEM)
//   3. Stored in memory for recent alert history
//
// Webhook payloads follow a common JSON format compatible with
// Slack incoming webhooks, Discord webhooks, and PagerDuty Events API.

// Alert represents a structured security alert
type Alert struct {
	ID          string                     `json:"id"`
	Timestamp   time.Time                  `json:"timestamp"`
	Severity    string                     `json:"severity"`  // info/low/medium/high/critical
	AlertType   string                     `json:"alertType"` // high_risk/attack_detected/credential_stuffing/spoofed_crawler/fast_path_abort
	Title       string                     `json:"title"`
	Description string                     `json:"description"`
	Signature   string                     `json:"signature,omitempty"`
	ClientIP    string                     `json:"clientIp,omitempty"`
	Path        string                     `json:"path,omitempty"`
	Probability float64                    `json:"probability,omitempty"`
	ThreatScore float64                    `json:"threatScore,omitempty"`
	Evidence    *models.AggregatedEvidence `json:"evidence,omitempty"`
}

// WebhookEndpoint is a registered webhook receiver
type WebhookEndpoint struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	MinSeverity string            `json:"minSeverity"` // Only send alerts >= this severity
}

// Manager handles alert emission and webhook delivery
type Manager struct {
	mu            sync.RWMutex
	webhooks      []WebhookEndpoint
	recentAlerts  []Alert
	maxHistory    int
	httpClient    *http.Client
	alertCallback func(Alert) // WebSocket broadcast callback
}

// NewManager creates a new alert system
func NewManager(broadcastFn func(Alert)) *Manager {
	return &Manager{
		webhooks:      make([]WebhookEndpoint, 0),
		recentAlerts:  make([]Alert, 0),
		maxHistory:    1000,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		alertCallback: broadcastFn,
	}
}

// RegisterWebhook adds a webhook endpoint
func (am *Manager) RegisterWebhook(name, url, minSeverity string, headers map[string]string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	am.webhooks = append(am.webhooks, WebhookEndpoint{
		Name:        name,
		URL:         url,
		Enabled:     true,
		Headers:     headers,
		MinSeverity: minSeverity,
	})

	log.Printf("[AlertManager] Registered webhook: %s -> %s (min: %s)", name, url, minSeverity)
}

// RemoveWebhook removes a webhook by name
func (am *Manager) RemoveWebhook(name string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	for i, wh := range am.webhooks {
		if wh.Name == name {
			am.webhooks = append(am.webhooks[:i], am.webhooks[i+1:]...)
			return
		}
	}
}

// EmitAlert processes and distributes an alert
func (am *Manager) EmitAlert(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	// Store in history
	am.mu.Lock()
	am.recentAlerts = append(am.recentAlerts, alert)
	if len(am.recentAlerts) > am.maxHistory {
		am.recentAlerts = am.recentAlerts[len(am.recentAlerts)-am.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(am.webhooks))
	copy(webhooks, am.webhooks)
	am.mu.Unlock()

	// Broadcast via WebSocket callback
	if am.alertCallback != nil {
		am.alertCallback(alert)
	}

	// Send to webhooks (async, non-blocking)
	for _, wh := range webhooks {
		if !wh.Enabled {
			continue
		}
		if !severityMeetsThreshold(alert.Severity, wh.MinSeverity) {
			continue
		}
		go am.sendWebhook(wh, alert)
	}

	log.Printf("[Alert] [%s] %s: %s (ip: %s)", alert.Severity, alert.AlertType, alert.Title, alert.ClientIP)
}

// EmitFromEvidence creates and emits an alert from an aggregated verdict.
// Traffic below the High band never alerts; dashboards see it on the live
// verdict stream instead.
func (am *Manager) EmitFromEvidence(req *models.RequestSnapshot, signature string, ev models.AggregatedEvidence) {
	severity := severityFor(ev)
	if severity == "info" {
		return
	}

	alertType := "high_risk"
	title := "High-risk client: " + string(ev.RiskBand)

	switch {
	case stringSignal(ev.Signals, signals.RepFastPath) == "abort":
		alertType = "fast_path_abort"
		title = "Blocked pattern hit the fast path"
	case boolSignal(ev.Signals, signals.BotSpoofed) && boolSignal(ev.Signals, signals.AttackDetected):
		alertType = "compound"
		title = "Spoofed crawler delivering attack payloads"
	case boolSignal(ev.Signals, signals.AtoDetected):
		alertType = "credential_stuffing"
		title = "Credential stuffing against login endpoints"
	case boolSignal(ev.Signals, signals.AttackDetected):
		alertType = "attack_detected"
		title = "Attack payload detected"
	case boolSignal(ev.Signals, signals.BotSpoofed):
		alertType = "spoofed_crawler"
		title = "Client spoofing a verified crawler identity"
	}

	am.EmitAlert(Alert{
		Severity:    severity,
		AlertType:   alertType,
		Title:       title,
		Description: buildDescription(ev),
		Signature:   signature,
		ClientIP:    req.ClientIP,
		Path:        req.Path,
		Probability: ev.BotProbability,
		ThreatScore: ev.ThreatScore,
		Evidence:    &ev,
	})
}

// GetRecentAlerts returns the most recent alerts, newest first
func (am *Manager) GetRecentAlerts(limit int) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if limit <= 0 || limit > len(am.recentAlerts) {
		limit = len(am.recentAlerts)
	}

	start := len(am.recentAlerts) - limit
	result := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		result[i] = am.recentAlerts[start+limit-1-i]
	}
	return result
}

// GetAlertsBySeverity returns alerts matching a minimum severity
func (am *Manager) GetAlertsBySeverity(minSeverity string) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	var filtered []Alert
	for _, alert := range am.recentAlerts {
		if severityMeetsThreshold(alert.Severity, minSeverity) {
			filtered = append(filtered, alert)
		}
	}
	return filtered
}

// sendWebhook delivers an alert to a webhook endpoint
func (am *Manager) sendWebhook(wh WebhookEndpoint, alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Webhook] Failed to marshal alert: %v", err)
		return
	}

	req, err := http.NewRequest("POST", wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("[Webhook] Failed to create request for %s: %v", wh.Name, err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := am.httpClient.Do(req)
	if err != nil {
		log.Printf("[Webhook] Failed to send to %s: %v", wh.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[Webhook] %s returned status %d", wh.Name, resp.StatusCode)
	}
}

// severityFor maps a verdict to an alert severity. Threat escalates one
// level: a High-band scraper is "high", a High-band attacker is "critical".
func severityFor(ev models.AggregatedEvidence) string {
	var base string
	switch ev.RiskBand {
	case models.RiskCritical:
		base = "critical"
	case models.RiskHigh:
		base = "high"
	default:
		return "info"
	}
	if base == "high" && (ev.ThreatBand == models.ThreatHigh || ev.ThreatBand == models.ThreatCritical) {
		base = "critical"
	}
	return base
}

// severityMeetsThreshold checks if a severity level meets the minimum
func severityMeetsThreshold(severity, minimum string) bool {
	levels := map[string]int{
		"info": 0, "low": 1, "medium": 2, "high": 3, "critical": 4,
	}
	return levels[severity] >= levels[minimum]
}

// buildDescription creates a human-readable alert description
func buildDescription(ev models.AggregatedEvidence) string {
	desc := ""
	if boolSignal(ev.Signals, signals.AttackDetected) {
		desc += "Request carried attack payloads. "
	}
	if boolSignal(ev.Signals, signals.AtoDetected) {
		desc += "Login abuse drift over the session window. "
	}
	if boolSignal(ev.Signals, signals.BotSpoofed) {
		desc += "User-Agent claims a crawler identity that failed verification. "
	}
	if ev.PrimaryBotName != "" {
		desc += "Classified as " + string(ev.PrimaryBotType) + " (" + ev.PrimaryBotName + "). "
	} else if ev.PrimaryBotType != "" && ev.PrimaryBotType != models.BotTypeUnknown {
		desc += "Classified as " + string(ev.PrimaryBotType) + ". "
	}
	if ev.IntentCategory != "" && ev.IntentCategory != models.IntentBrowsing {
		desc += "Session intent: " + string(ev.IntentCategory) + "."
	}
	return desc
}

func boolSignal(sigs map[string]any, key string) bool {
	v, ok := sigs[key].(bool)
	return ok && v
}

func stringSignal(sigs map[string]any, key string) string {
	v, _ := sigs[key].(string)
	return v
}
