package models

// Detection evidence model.
//
// Every analyzer ("contributor") that runs against a request emits one or
// more DetectionContribution records. The ledger is append-only; the
// aggregator fuses it into a single AggregatedEvidence verdict:
//
//   bot_probability  — [0,1], 0.5 = undecided
//   confidence       — [0,1], grows with total evidence weight
//   risk_band        — discrete label derived from probability
//   threat_score     — orthogonal: intent of the session, not identity

// BotType classifies what kind of automated client produced the traffic.
type BotType string

const (
	BotTypeUnknown      BotType = "Unknown"
	BotTypeGoodBot      BotType = "GoodBot"
	BotTypeSearchEngine BotType = "SearchEngine"
	BotTypeAiBot        BotType = "AiBot"
	BotTypeScraper      BotType = "Scraper"
	BotTypeMalicious    BotType = "MaliciousBot"
)

// Verdict is an optional flag a contribution may carry. VerifiedGoodBot and
// VerifiedBot are authoritative: they clamp the final probability and may
// trigger early exit from the orchestrator.
type Verdict int

const (
	VerdictInfo Verdict = iota
	VerdictNormal
	VerdictVerifiedGoodBot
	VerdictVerifiedBot
)

func (v Verdict) String() string {
	switch v {
	case VerdictVerifiedGoodBot:
		return "VerifiedGoodBot"
	case VerdictVerifiedBot:
		return "VerifiedBot"
	case VerdictNormal:
		return "Normal"
	default:
		return "Info"
	}
}

// RiskBand is the discrete label derived from bot probability.
type RiskBand string

const (
	RiskNone     RiskBand = "None"
	RiskLow      RiskBand = "Low"
	RiskElevated RiskBand = "Elevated"
	RiskMedium   RiskBand = "Medium"
	RiskHigh     RiskBand = "High"
	RiskCritical RiskBand = "Critical"
)

// RiskBandFor maps a bot probability to its band.
// None < 0.15 ≤ Low < 0.35 ≤ Elevated < 0.55 ≤ Medium < 0.75 ≤ High < 0.90 ≤ Critical
func RiskBandFor(p float64) RiskBand {
	switch {
	case p < 0.15:
		return RiskNone
	case p < 0.35:
		return RiskLow
	case p < 0.55:
		return RiskElevated
	case p < 0.75:
		return RiskMedium
	case p < 0.90:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// ThreatBand is the discrete label derived from the threat score.
type ThreatBand string

const (
	ThreatNone     ThreatBand = "None"
	ThreatLow      ThreatBand = "Low"
	ThreatElevated ThreatBand = "Elevated"
	ThreatHigh     ThreatBand = "High"
	ThreatCritical ThreatBand = "Critical"
)

// ThreatBandFor maps a threat score to its band.
func ThreatBandFor(s float64) ThreatBand {
	switch {
	case s < 0.15:
		return ThreatNone
	case s < 0.40:
		return ThreatLow
	case s < 0.60:
		return ThreatElevated
	case s < 0.85:
		return ThreatHigh
	default:
		return ThreatCritical
	}
}

// IntentCategory describes what the session is doing, independent of whether
// the client is automated.
type IntentCategory string

const (
	IntentBrowsing       IntentCategory = "browsing"
	IntentScanning       IntentCategory = "scanning"
	IntentReconnaissance IntentCategory = "reconnaissance"
	IntentAttacking      IntentCategory = "attacking"
)

// DetectionContribution is the immutable evidence record a contributor emits.
// Delta is signed: ≥ 0 leans bot, < 0 leans human; magnitude in [0,1].
// Weight scales the delta during aggregation (nominally 1.0, ≥ 0).
type DetectionContribution struct {
	Detector string         `json:"detector"`
	Category string         `json:"category"`
	Delta    float64        `json:"delta"`
	Weight   float64        `json:"weight"`
	Reason   string         `json:"reason"`
	BotType  BotType        `json:"botType,omitempty"`
	BotName  string         `json:"botName,omitempty"`
	Verdict  Verdict        `json:"verdict"`
	Signals  map[string]any `json:"signals,omitempty"` // merged into the blackboard atomically with the append
}

// CategoryRollup summarizes one evidence category across the ledger.
type CategoryRollup struct {
	WeightedDelta float64 `json:"weightedDelta"` // Σ weight·delta
	Count         int     `json:"count"`
	TopReason     string  `json:"topReason"` // reason of the highest |weight·delta| contribution
}

// AggregatedEvidence is the final verdict handed back to the middleware.
type AggregatedEvidence struct {
	RequestID             string                    `json:"requestId"`
	Ledger                []DetectionContribution   `json:"ledger"` // completion order
	BotProbability        float64                   `json:"botProbability"`
	Confidence            float64                   `json:"confidence"`
	RiskBand              RiskBand                  `json:"riskBand"`
	PrimaryBotType        BotType                   `json:"primaryBotType,omitempty"`
	PrimaryBotName        string                    `json:"primaryBotName,omitempty"`
	Signals               map[string]any            `json:"signals"`
	TotalProcessingMs     float64                   `json:"totalProcessingMs"`
	CategoryBreakdown     map[string]CategoryRollup `json:"categoryBreakdown"`
	ContributingDetectors []string                  `json:"contributingDetectors"`
	FailedDetectors       []string                  `json:"failedDetectors"`
	ThreatScore           float64                   `json:"threatScore"`
	ThreatBand            ThreatBand                `json:"threatBand"`
	IntentCategory        IntentCategory            `json:"intentCategory"`
}
