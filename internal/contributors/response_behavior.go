package contributors

import (
	"context"
	"fmt"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// ResponseBehavior folds in what the origin said back to this client over
// the window: 404 spray, honeypot touches, auth failures. Response-side
// evidence is the strongest behavioral signal we have because the client
// cannot fake what the server answered.
type ResponseBehavior struct {
	base
	coordinator ResponseCoordinator
}

func NewResponseBehavior(d Deps) *ResponseBehavior {
	return &ResponseBehavior{
		base:        newBase(d.Config, "response_behavior", 29, 100),
		coordinator: d.Responses,
	}
}

func (r *ResponseBehavior) Contribute(ctx context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	if r.coordinator == nil {
		return []models.DetectionContribution{blackboard.Info(r.name, CatFeedback, "response coordinator not configured")}, nil
	}

	req := s.Request
	behavior, err := r.coordinator.GetClientBehavior(ctx, patterns.Signature(req.ClientIP, req.UserAgent()))
	if err != nil {
		return []models.DetectionContribution{blackboard.Info(r.name, CatFeedback, "behavior lookup failed: "+err.Error())}, nil
	}
	if behavior.TotalResponses == 0 {
		return []models.DetectionContribution{blackboard.Info(r.name, CatFeedback, "no response history")}, nil
	}

	scanPattern := behavior.Count404 >= r.intParam("scan_404s", 10) &&
		behavior.UniqueNotFoundPaths >= r.intParam("scan_unique_paths", 8)

	sigs := map[string]any{
		signals.Response404Count:     behavior.Count404,
		signals.Response404Paths:     behavior.UniqueNotFoundPaths,
		signals.ResponseHoneypot:     behavior.HoneypotHits,
		signals.ResponseAuthFailures: behavior.AuthFailures,
		signals.ResponseScanPattern:  scanPattern,
	}

	var out []models.DetectionContribution
	add := func(c models.DetectionContribution) {
		if sigs != nil {
			c = blackboard.WithSignals(c, sigs)
			sigs = nil
		}
		out = append(out, c)
	}

	if behavior.HoneypotHits > 0 {
		c := blackboard.StrongBot(r.name, CatFeedback, fmt.Sprintf("%d honeypot hits", behavior.HoneypotHits), r.conf("honeypot", 0.90))
		add(blackboard.WithType(c, models.BotTypeMalicious, ""))
	}
	if scanPattern {
		c := blackboard.StrongBot(r.name, CatFeedback, fmt.Sprintf("404 spray: %d misses over %d paths", behavior.Count404, behavior.UniqueNotFoundPaths), r.conf("scan_404", 0.80))
		add(blackboard.WithType(c, models.BotTypeMalicious, ""))
	}
	if behavior.AuthFailures >= r.intParam("auth_failures", 3) {
		add(blackboard.Bot(r.name, CatFeedback, fmt.Sprintf("%d auth failures", behavior.AuthFailures), r.conf("auth_failures", 0.60)))
	}
	if behavior.RateLimitHits > 0 {
		add(blackboard.Bot(r.name, CatFeedback, fmt.Sprintf("%d rate-limit rejections", behavior.RateLimitHits), r.conf("rate_limited", 0.45)))
	}

	if len(out) == 0 {
		add(blackboard.Human(r.name, CatFeedback, "clean response history", r.conf("clean_history", 0.30)))
	}
	return out, nil
}
