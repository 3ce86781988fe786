package shadow

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/sentinel-engine/internal/aggregate"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Runner re-scores production evidence ledgers with a candidate aggregator
// configuration. No tuning change affects live verdicts immediately: a
// candidate runs in shadow mode against real traffic for an observation
// window, and only its divergence report decides promotion.
//
// The candidate sees the exact ledger the production scorer saw, so every
// divergence is attributable to the scoring change alone, never to
// contributor nondeterminism.
type Runner struct {
	pool        *pgxpool.Pool
	candidateID string
	candidate   *aggregate.Aggregator
	evaluator   *Evaluator
}

// Result captures the diff between the production and candidate verdicts for
// one request.
type Result struct {
	Signature             string          `json:"signature"`
	ProductionProbability float64         `json:"productionProbability"`
	CandidateProbability  float64         `json:"candidateProbability"`
	ProductionBand        models.RiskBand `json:"productionBand"`
	CandidateBand         models.RiskBand `json:"candidateBand"`
	CandidateID           string          `json:"candidateId"`
	CreatedAt             time.Time       `json:"createdAt"`
}

// Diverged reports whether the candidate moved the request across a band
// boundary. Probability jitter inside a band is not a divergence.
func (r Result) Diverged() bool {
	return r.ProductionBand != r.CandidateBand
}

// NewRunner creates a shadow runner for one candidate aggregator. The pool is
// optional; without it results are held in memory only.
func NewRunner(pool *pgxpool.Pool, candidateID string, candidate *aggregate.Aggregator) *Runner {
	return &Runner{
		pool:        pool,
		candidateID: candidateID,
		candidate:   candidate,
		evaluator:   NewEvaluator(),
	}
}

// Observe re-scores one production verdict under the candidate configuration
// and records the comparison. Called off the response path; a failed persist
// never affects the live verdict.
func (sr *Runner) Observe(ctx context.Context, signature string, ev models.AggregatedEvidence) (Result, error) {
	shadow := sr.candidate.Score(ev.Ledger)

	result := Result{
		Signature:             signature,
		ProductionProbability: ev.BotProbability,
		CandidateProbability:  shadow.Probability,
		ProductionBand:        ev.RiskBand,
		CandidateBand:         shadow.RiskBand,
		CandidateID:           sr.candidateID,
		CreatedAt:             time.Now(),
	}

	sr.evaluator.Record(result)

	if result.Diverged() {
		log.Printf("[Shadow] DIVERGENCE on %s: prod=%.3f (%s) candidate=%.3f (%s)",
			signature, result.ProductionProbability, result.ProductionBand,
			result.CandidateProbability, result.CandidateBand)
	}

	if sr.pool != nil {
		if err := sr.persist(ctx, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// persist writes the comparison to the shadow_results table, never to the
// production reputation tables.
func (sr *Runner) persist(ctx context.Context, result Result) error {
	sql := `INSERT INTO shadow_results
		(signature, production_probability, candidate_probability, production_band, candidate_band, candidate_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := sr.pool.Exec(ctx, sql,
		result.Signature,
		result.ProductionProbability,
		result.CandidateProbability,
		string(result.ProductionBand),
		string(result.CandidateBand),
		result.CandidateID,
		result.CreatedAt,
	)
	return err
}

// DriftReport summarizes the candidate's divergence from production so far.
func (sr *Runner) DriftReport() Report {
	return sr.evaluator.Report()
}

// StoredDriftReport computes the divergence rate over all persisted shadow
// results for this candidate.
func (sr *Runner) StoredDriftReport(ctx context.Context) (totalRuns, divergences int, avgDelta float64, err error) {
	sql := `SELECT
		COUNT(*) as total,
		COUNT(*) FILTER (WHERE production_band != candidate_band) as divergences,
		COALESCE(AVG(candidate_probability - production_probability), 0) as avg_delta
	FROM shadow_results WHERE candidate_id = $1`

	row := sr.pool.QueryRow(ctx, sql, sr.candidateID)
	err = row.Scan(&totalRuns, &divergences, &avgDelta)
	return
}
