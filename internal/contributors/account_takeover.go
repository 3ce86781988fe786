package contributors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/reputation"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// AccountTakeover watches authentication endpoints for credential stuffing
// and brute forcing. The drift score is a weighted composite of the partial
// tells — attempt velocity, login-only path focus, missing session
// fingerprint, metronomic timing, geo churn — so a stuffer that stays under
// each individual threshold still surfaces. A signature with a long, mostly
// human history earns baseline trust that attenuates the drift exponentially
// (half-life in days), so a regular returning after a vacation and fumbling
// a password is not scored like an attack.
type AccountTakeover struct {
	base
	windows *windows.Store
	history reputation.TimeSeriesProvider
}

func NewAccountTakeover(d Deps) *AccountTakeover {
	return &AccountTakeover{
		base:    newBase(d.Config, "account_takeover", 28, 50),
		windows: d.Windows,
		history: d.TimeSeries,
	}
}

func (a *AccountTakeover) Contribute(ctx context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	req := s.Request
	if !windows.IsLoginPath(req.Path) {
		return []models.DetectionContribution{blackboard.Info(a.name, CatSession, "not an auth endpoint")}, nil
	}
	if a.windows == nil {
		return []models.DetectionContribution{blackboard.Info(a.name, CatSession, "window store not configured")}, nil
	}

	sig := patterns.Signature(req.ClientIP, req.UserAgent())
	if req.Method == "POST" {
		// Failure status is backfilled by the response middleware.
		a.windows.RecordLogin(sig, windows.LoginAttempt{Timestamp: req.ReceivedAt, Method: req.Method})
	}

	attempts, failures := 0, 0
	sawLoginGet := false
	endpoints := 0
	countryChanges := 0
	var cadence []time.Time
	if entry, ok := a.windows.Peek(sig); ok {
		entry.Visit(func(e *windows.Entry) {
			attempts = len(e.LoginAttempts)
			for _, at := range e.LoginAttempts {
				if at.Failed {
					failures++
				}
				cadence = append(cadence, at.Timestamp)
			}
			endpoints = len(e.Endpoints)
			countryChanges = len(e.CountryChanges)
			for _, ev := range e.Requests {
				if ev.Method == "GET" && windows.IsLoginPath(ev.Path) {
					sawLoginGet = true
					break
				}
			}
		})
	}

	postWithoutGet := req.Method == "POST" && !sawLoginGet
	noReferer := req.Method == "POST" && req.Header("Referer") == ""
	noCookies := req.Method == "POST" && req.Header("Cookie") == ""

	// Drift composite. Each component is normalized to [0,1]; the weighted
	// sum crossing the line is what fires, not any single component.
	velocity := minf(float64(attempts)/float64(a.intParam("max_attempts", 5)), 1.0)

	pathFocus := 0.0
	if postWithoutGet {
		pathFocus += 0.7
	}
	if endpoints <= 1 && attempts >= 2 {
		pathFocus += 0.3
	}

	fingerprint := 0.0
	if noCookies {
		fingerprint += 0.6
	}
	if noReferer {
		fingerprint += 0.4
	}

	timing := 0.0
	if cv := attemptCV(cadence); cv >= 0 && cv < 0.4 {
		timing = 1.0 - cv/0.4
	}

	geo := minf(float64(countryChanges), 1.0)

	drift := velocity*0.35 + pathFocus*0.25 + fingerprint*0.20 + timing*0.10 + geo*0.10

	// Baseline trust: a signature with days of mostly-human history gets its
	// drift halved every trust_half_life_days of accumulated activity.
	if a.history != nil {
		if stats, err := a.history.GetReputation(ctx, sig); err == nil && stats.DaysActive > 0 && stats.BotRatio < 0.5 {
			halfLife := a.param("trust_half_life_days", 30)
			if halfLife > 0 {
				drift *= math.Pow(0.5, float64(stats.DaysActive)/halfLife)
			}
		}
	}

	sigs := map[string]any{
		signals.AtoLoginAttempts:  attempts,
		signals.AtoAuthFailures:   failures,
		signals.AtoPostWithoutGet: postWithoutGet,
		signals.AtoDriftScore:     drift,
	}

	// Stuffing (the drift composite) and brute force (failures piling up)
	// are separate findings; a volley that is both gets both records.
	var out []models.DetectionContribution
	if drift >= a.param("drift_threshold", 0.70) {
		sigs[signals.AtoDetected] = true
		c := blackboard.StrongBot(a.name, CatSession, fmt.Sprintf("credential stuffing shape (%d attempts, drift %.2f)", attempts, drift), a.conf("ato", 0.85))
		out = append(out, blackboard.WithType(c, models.BotTypeMalicious, ""))
	}
	if failures >= a.intParam("max_failures", 3) {
		sigs[signals.AtoDetected] = true
		c := blackboard.Bot(a.name, CatSession, fmt.Sprintf("brute force: %d failed logins in window", failures), a.conf("brute_force", 0.70))
		out = append(out, blackboard.WithType(c, models.BotTypeMalicious, ""))
	}
	if len(out) == 0 {
		if attempts >= a.intParam("max_attempts", 5) {
			sigs[signals.AtoDetected] = true
			c := blackboard.Bot(a.name, CatSession, fmt.Sprintf("%d login attempts in window", attempts), a.conf("attempt_volume", 0.70))
			out = append(out, blackboard.WithType(c, models.BotTypeMalicious, ""))
		} else if postWithoutGet {
			out = append(out, blackboard.Bot(a.name, CatSession, "credentials posted without loading the login page", a.conf("post_without_get", 0.50)))
		} else {
			out = append(out, blackboard.Neutral(a.name, CatSession, "ordinary auth traffic"))
		}
	}
	out[0] = blackboard.WithSignals(out[0], sigs)
	return out, nil
}

// attemptCV is the coefficient of variation of inter-attempt intervals.
// Returns -1 when there are too few attempts to judge.
func attemptCV(times []time.Time) float64 {
	if len(times) < 3 {
		return -1
	}
	var gaps []float64
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Seconds())
	}
	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean <= 0 {
		return 0
	}
	var sq float64
	for _, g := range gaps {
		sq += (g - mean) * (g - mean)
	}
	return math.Sqrt(sq/float64(len(gaps))) / mean
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
