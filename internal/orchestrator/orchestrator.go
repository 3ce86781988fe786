// Package orchestrator runs the contributor fleet against one request:
// wave scheduling off trigger predicates, bounded concurrent execution,
// between-wave aggregation, early exit on authoritative verdicts, and the
// feedback fan-out that closes the reputation loop.
package orchestrator

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/rawblock/sentinel-engine/internal/aggregate"
	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/reputation"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// VerdictRecorder receives the final verdict for long-term storage.
// reputation.PostgresStore satisfies it.
type VerdictRecorder interface {
	RecordVerdict(ctx context.Context, signature string, isBot bool, probability float64) error
}

// Options configures an orchestrator.
type Options struct {
	// Budget is the per-request wall-clock cap. Must exceed the largest
	// contributor timeout; Run enforces that at startup.
	Budget time.Duration
	// MaxWaves bounds the scheduling loop independent of time.
	MaxWaves int

	// Feedback sinks, all optional.
	Maintainer *reputation.Maintainer
	History    VerdictRecorder
	Countries  *reputation.CountryTracker
	// BotLine is the probability above which feedback counts the request as
	// bot. Default 0.75 (High band).
	BotLine float64
}

// Orchestrator is safe for concurrent use; all per-request state lives on
// the blackboard.
type Orchestrator struct {
	contributors []blackboard.Contributor
	agg          *aggregate.Aggregator
	windows      *windows.Store
	opts         Options
}

// New builds an orchestrator over a contributor fleet. Contributors are
// ordered by priority once, up front.
func New(fleet []blackboard.Contributor, agg *aggregate.Aggregator, win *windows.Store, opts Options) *Orchestrator {
	sorted := append([]blackboard.Contributor(nil), fleet...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })

	maxTimeout := time.Duration(0)
	for _, c := range sorted {
		if c.ExecutionTimeout() > maxTimeout {
			maxTimeout = c.ExecutionTimeout()
		}
	}
	if opts.Budget <= maxTimeout {
		opts.Budget = maxTimeout + 500*time.Millisecond
		log.Printf("[Orchestrator] Budget raised to %v to exceed the largest contributor timeout", opts.Budget)
	}
	if opts.MaxWaves <= 0 {
		opts.MaxWaves = 8
	}
	if opts.BotLine <= 0 {
		opts.BotLine = 0.75
	}

	return &Orchestrator{
		contributors: sorted,
		agg:          agg,
		windows:      win,
		opts:         opts,
	}
}

type contribResult struct {
	contributor blackboard.Contributor
	contribs    []models.DetectionContribution
	err         error
	panicked    bool
}

// Process runs the full pipeline for one request and returns the aggregated
// evidence. It never fails the request: contributor errors, timeouts, and
// panics degrade to entries in failed_detectors.
func (o *Orchestrator) Process(ctx context.Context, req *models.RequestSnapshot) models.AggregatedEvidence {
	state := blackboard.NewState(req)
	o.recordRequest(req)

	ctx, cancel := context.WithTimeout(ctx, o.opts.Budget)
	defer cancel()

	pending := append([]blackboard.Contributor(nil), o.contributors...)

	for wave := 1; wave <= o.opts.MaxWaves && len(pending) > 0; wave++ {
		var eligible, deferred []blackboard.Contributor
		for _, c := range pending {
			if blackboard.Eligible(c, state) {
				eligible = append(eligible, c)
			} else {
				deferred = append(deferred, c)
			}
		}

		// No wave can make progress: the remaining triggers will never fire
		// this request. Terminate and mark them failed so the ledger shows
		// they were considered.
		if len(eligible) == 0 {
			for _, c := range deferred {
				state.MarkFailed(c.Name())
			}
			break
		}

		o.runWave(ctx, state, eligible)
		pending = deferred

		res := o.agg.Score(state.Contributions())
		state.SetScore(res.Probability)

		if v, ok := authoritativeVerdict(state); ok {
			state.SetEarlyExit(v)
			break
		}
		if ctx.Err() != nil {
			for _, c := range pending {
				state.MarkFailed(c.Name())
			}
			break
		}
	}

	ev := o.agg.Evidence(state)
	o.feedback(req, ev)
	return ev
}

// runWave fans the eligible set out concurrently, joining each worker with
// its own timeout. A worker that overruns is recorded failed and its late
// result discarded; a panic is contained to its worker.
func (o *Orchestrator) runWave(ctx context.Context, state *blackboard.State, eligible []blackboard.Contributor) {
	results := make(chan contribResult, len(eligible))

	for _, c := range eligible {
		go func(c blackboard.Contributor) {
			cctx, ccancel := context.WithTimeout(ctx, c.ExecutionTimeout())
			defer ccancel()

			inner := make(chan contribResult, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("[Orchestrator] Contributor %s panicked: %v", c.Name(), r)
						inner <- contribResult{contributor: c, panicked: true}
					}
				}()
				contribs, err := c.Contribute(cctx, state)
				inner <- contribResult{contributor: c, contribs: contribs, err: err}
			}()

			// The timeout is a hard cap even for a contributor that ignores
			// its context; the late result is discarded.
			select {
			case r := <-inner:
				results <- r
			case <-cctx.Done():
				results <- contribResult{contributor: c, err: cctx.Err()}
			}
		}(c)
	}

	waveDeadline := time.NewTimer(o.opts.Budget)
	defer waveDeadline.Stop()

	collected := map[string]bool{}
	for len(collected) < len(eligible) {
		select {
		case r := <-results:
			collected[r.contributor.Name()] = true
			switch {
			case r.panicked:
				state.MarkFailed(r.contributor.Name())
			case r.err != nil:
				log.Printf("[Orchestrator] Contributor %s failed: %v", r.contributor.Name(), r.err)
				state.MarkFailed(r.contributor.Name())
			default:
				state.Append(r.contributor.Name(), r.contribs)
			}
		case <-waveDeadline.C:
			// Budget blown mid-wave: everything not yet collected is failed.
			for _, c := range eligible {
				if !collected[c.Name()] {
					state.MarkFailed(c.Name())
					collected[c.Name()] = true
				}
			}
		}
	}
}

// authoritativeVerdict scans the ledger for an early-exit verdict.
func authoritativeVerdict(state *blackboard.State) (models.Verdict, bool) {
	for _, c := range state.Contributions() {
		if c.Verdict == models.VerdictVerifiedGoodBot || c.Verdict == models.VerdictVerifiedBot {
			return c.Verdict, true
		}
	}
	return 0, false
}

// recordRequest appends the request to the signature's sliding window before
// any contributor runs, so history-sensitive contributors see it.
func (o *Orchestrator) recordRequest(req *models.RequestSnapshot) {
	if o.windows == nil {
		return
	}
	sig := patterns.Signature(req.ClientIP, req.UserAgent())
	o.windows.Update(sig, windows.RequestEvent{
		Timestamp:    req.ReceivedAt,
		Method:       req.Method,
		Path:         req.Path,
		UserAgent:    req.UserAgent(),
		ContentClass: windows.ClassifyPath(req.Path),
	})
}

// feedback fans the verdict out to the learning sinks. Best-effort; a slow
// or failing sink never delays the response path longer than its own budget.
func (o *Orchestrator) feedback(req *models.RequestSnapshot, ev models.AggregatedEvidence) {
	isBot := ev.BotProbability >= o.opts.BotLine

	if o.opts.Maintainer != nil {
		ids := []string{
			patterns.UAPatternID(req.UserAgent()),
			patterns.IPPatternID(req.ClientIP),
			patterns.CombinedPatternID(req.UserAgent(), req.ClientIP, req.Path),
		}
		o.opts.Maintainer.Observe(ids, ev.BotProbability)
	}

	if o.opts.Countries != nil {
		if country, ok := ev.Signals[signals.GeoCountry].(string); ok && country != "" {
			o.opts.Countries.RecordDetection(country, req.ClientIP, isBot, ev.BotProbability)
		}
	}

	if o.opts.History != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			sig := patterns.Signature(req.ClientIP, req.UserAgent())
			if err := o.opts.History.RecordVerdict(ctx, sig, isBot, ev.BotProbability); err != nil {
				log.Printf("[Orchestrator] Verdict history write failed: %v", err)
			}
		}()
	}
}
