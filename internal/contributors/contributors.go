// Package contributors holds the analyzers the orchestrator schedules. Each
// contributor is small, independent, and communicates with the rest of the
// fleet only through blackboard signals and the contribution ledger.
//
// Families:
//
//	identity    — useragent, header, tls/h2/h3/tcp fingerprints, correlation
//	reputation  — fastpath_reputation, reputation_bias, verified_bot, botlist, datacenter
//	behavioral  — waveform, cache_behavior, geo
//	payload     — haxxor
//	session     — account_takeover, stream_abuse, transport_protocol
//	feedback    — response_behavior
//	model       — heuristic, heuristic_late, llm, similarity, cluster
//	intent      — intent (threat score, orthogonal to bot probability)
//
// Every tunable is read through the config provider; the constants in this
// package are defaults, not policy.
package contributors

import (
	"context"
	"time"

	"github.com/rawblock/sentinel-engine/internal/aggregate"
	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/botlist"
	"github.com/rawblock/sentinel-engine/internal/config"
	"github.com/rawblock/sentinel-engine/internal/reputation"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Evidence categories.
const (
	CatIdentity   = "identity"
	CatReputation = "reputation"
	CatBehavioral = "behavioral"
	CatPayload    = "payload"
	CatSession    = "session"
	CatFeedback   = "feedback"
	CatProtocol   = "protocol"
	CatModel      = "model"
	CatIntent     = "intent"
)

// GeoResolver maps a client IP to an ISO country code. Empty string when
// unknown. Implementations are caller-provided (MaxMind, ip2location, ...).
type GeoResolver interface {
	Country(ip string) string
}

// DatacenterResolver reports whether an IP belongs to a hosting provider,
// and which one.
type DatacenterResolver interface {
	IsDatacenter(ip string) (bool, string)
}

// ResponseCoordinator surfaces response-side history for a client signature.
// Optional; the response_behavior contributor degrades to an Info record
// when absent.
type ResponseCoordinator interface {
	GetClientBehavior(ctx context.Context, signature string) (models.ClientResponseBehavior, error)
}

// SimilarityNeighbor is one hit from the signature-similarity index.
type SimilarityNeighbor struct {
	Distance float64
	WasBot   bool
	Metadata map[string]string
}

// SimilaritySearch is the approximate-nearest-neighbor contract.
type SimilaritySearch interface {
	FindSimilar(vector []float64, topK int, minSimilarity float64, contextLabel string) ([]SimilarityNeighbor, error)
	Count() int
}

// ModelReason is one reason a learned detector returns.
type ModelReason struct {
	Reason  string
	Impact  float64 // signed confidence impact, bot-positive
	BotType models.BotType
	BotName string
}

// ModelDetector is the learned-model contract (heuristic model, ONNX, LLM).
// The evidence argument is the intermediate aggregate view at call time.
type ModelDetector interface {
	Detect(ctx context.Context, req *models.RequestSnapshot, evidence aggregate.Result) ([]ModelReason, error)
}

// Deps bundles every external collaborator the fleet consumes. Optional
// fields may be nil; contributors that need them emit availability Info
// records instead of failing.
type Deps struct {
	Config     config.Provider
	Reputation reputation.Cache
	TimeSeries reputation.TimeSeriesProvider
	Windows    *windows.Store
	Registry   botlist.Registry
	Lists      botlist.Fetcher
	Geo        GeoResolver
	Datacenter DatacenterResolver
	Responses  ResponseCoordinator
	Similarity SimilaritySearch
	Intent     aggregate.IntentSearch
	Heuristic  ModelDetector
	Llm        ModelDetector
	Countries  *reputation.CountryTracker
}

// base carries the boilerplate every contributor shares: identity, config
// plumbing, trigger list.
type base struct {
	name     string
	priority int
	timeout  time.Duration
	triggers []blackboard.Trigger
	cfg      config.Provider
}

func newBase(cfg config.Provider, name string, defPriority, defTimeoutMS int, triggers ...blackboard.Trigger) base {
	if cfg == nil {
		cfg = config.Static{}
	}
	return base{
		name:     name,
		priority: cfg.Priority(name, defPriority),
		timeout:  time.Duration(cfg.TimeoutMS(name, defTimeoutMS)) * time.Millisecond,
		triggers: triggers,
		cfg:      cfg,
	}
}

func (b *base) Name() string                              { return b.name }
func (b *base) Priority() int                             { return b.priority }
func (b *base) ExecutionTimeout() time.Duration           { return b.timeout }
func (b *base) TriggerConditions() []blackboard.Trigger   { return b.triggers }
func (b *base) conf(kind string, def float64) float64     { return b.cfg.Confidence(b.name, kind, def) }
func (b *base) param(name string, def float64) float64    { return b.cfg.Param(b.name, name, def) }
func (b *base) intParam(name string, def int) int         { return b.cfg.IntParam(b.name, name, def) }

// DefaultSet assembles the full production fleet.
func DefaultSet(d Deps) []blackboard.Contributor {
	return []blackboard.Contributor{
		NewFastPathReputation(d),
		NewVerifiedBot(d),
		NewUserAgent(d),
		NewHeader(d),
		NewTLSFingerprint(d),
		NewHTTP2Fingerprint(d),
		NewHTTP3Fingerprint(d),
		NewTCPFingerprint(d),
		NewBotList(d),
		NewDatacenter(d),
		NewGeo(d),
		NewHaxxor(d),
		NewTransportProtocol(d),
		NewWaveform(d),
		NewCacheBehavior(d),
		NewAccountTakeover(d),
		NewResponseBehavior(d),
		NewStreamAbuse(d),
		NewCorrelation(d),
		NewHeuristic(d),
		NewReputationBias(d),
		NewSimilarity(d),
		NewCluster(d),
		NewIntent(d),
		NewHeuristicLate(d),
		NewLlm(d),
	}
}
