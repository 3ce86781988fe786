package models

// Pattern reputation model.
//
// A pattern ID identifies a class of clients rather than a single request:
//
//   ua:<hash16>        — normalized user-agent
//   ip:<cidr>          — /24 (IPv4) or /48 (IPv6) network
//   combined:<hash16>  — (ua, ip, normalized path) triple
//
// Reputation records are written by the maintenance service from observed
// verdicts and are read-only from the orchestrator's perspective within a
// single request.

// ReputationState is the lifecycle state of a pattern.
type ReputationState int

const (
	StateNeutral ReputationState = iota
	StateConfirmedGood
	StateConfirmedBad
	StateSuspect
	StateManuallyAllowed
	StateManuallyBlocked
)

func (s ReputationState) String() string {
	switch s {
	case StateConfirmedGood:
		return "ConfirmedGood"
	case StateConfirmedBad:
		return "ConfirmedBad"
	case StateSuspect:
		return "Suspect"
	case StateManuallyAllowed:
		return "ManuallyAllowed"
	case StateManuallyBlocked:
		return "ManuallyBlocked"
	default:
		return "Neutral"
	}
}

// PatternReputation is the stored reputation record for one pattern ID.
type PatternReputation struct {
	PatternID      string          `json:"patternId"`
	State          ReputationState `json:"state"`
	BotScore       float64         `json:"botScore"` // EMA of observed bot probability, [0,1]
	Support        int             `json:"support"`  // observations contributing to the state
	FastPathWeight float64         `json:"fastPathWeight"`
}

// CanTriggerFastAllow reports whether this record is strong enough for the
// fast-path human/verified-bot exit.
func (r PatternReputation) CanTriggerFastAllow() bool {
	if r.State == StateManuallyAllowed {
		return true
	}
	return r.State == StateConfirmedGood && r.Support >= 10
}

// CanTriggerFastAbort reports whether this record is strong enough for the
// fast-path bot exit.
func (r PatternReputation) CanTriggerFastAbort() bool {
	if r.State == StateManuallyBlocked {
		return true
	}
	return r.State == StateConfirmedBad && r.Support >= 10
}

// TimeSeriesStats is the long-horizon view a time-series reputation provider
// returns for a client signature. All fields are best-effort.
type TimeSeriesStats struct {
	Signature         string  `json:"signature"`
	BotRatio          float64 `json:"botRatio"` // fraction of past requests judged bot
	HitCount          int64   `json:"hitCount"`
	DaysActive        int     `json:"daysActive"`
	LastHourVelocity  float64 `json:"lastHourVelocity"` // requests in the trailing hour
	AvgBotProbability float64 `json:"avgBotProbability"`
}

// ClientResponseBehavior is the response-side history a response coordinator
// returns for a client signature.
type ClientResponseBehavior struct {
	TotalResponses      int            `json:"totalResponses"`
	Count404            int            `json:"count404"`
	UniqueNotFoundPaths int            `json:"uniqueNotFoundPaths"`
	HoneypotHits        int            `json:"honeypotHits"`
	AuthFailures        int            `json:"authFailures"`
	RateLimitHits       int            `json:"rateLimitHits"`
	ResponseScore       float64        `json:"responseScore"` // 0 clean .. 1 abusive
	PatternCounts       map[string]int `json:"patternCounts"` // e.g. "error_template" -> n
}
