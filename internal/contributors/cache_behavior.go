package contributors

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Query parameters whose only purpose is defeating caches.
var busterParams = []string{"_", "cb", "cachebuster", "nocache", "ts", "rand", "bust"}

// CacheBehavior spots clients that deliberately defeat caching to force
// fresh origin hits: cache-buster query params plus client no-cache
// directives, repeated against the same endpoint. Scrapers polling for
// changes do this; browsers only on a hard reload.
type CacheBehavior struct {
	base
	windows *windows.Store
}

func NewCacheBehavior(d Deps) *CacheBehavior {
	return &CacheBehavior{
		base:    newBase(d.Config, "cache_behavior", 27, 30),
		windows: d.Windows,
	}
}

func (c *CacheBehavior) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	req := s.Request

	buster := hasBusterParam(req.Query)
	noCache := strings.Contains(strings.ToLower(req.Header("Cache-Control")), "no-cache") ||
		strings.EqualFold(req.Header("Pragma"), "no-cache")

	if !buster && !noCache {
		return []models.DetectionContribution{blackboard.Info(c.name, CatBehavioral, "normal cache semantics")}, nil
	}

	// How many times has this exact path been pulled in the window?
	repeats := 0
	if c.windows != nil {
		if entry, ok := c.windows.Peek(patterns.Signature(req.ClientIP, req.UserAgent())); ok {
			entry.Visit(func(e *windows.Entry) {
				for _, ev := range e.Requests {
					if ev.Path == req.Path {
						repeats++
					}
				}
			})
		}
	}

	sigs := map[string]any{
		signals.CacheBusterQuery: buster,
		signals.CacheBypassCount: repeats,
	}

	threshold := c.intParam("repeat_threshold", 10)
	if buster && repeats >= threshold {
		contrib := blackboard.Bot(c.name, CatBehavioral, fmt.Sprintf("cache-busted polling of %s (%d hits)", req.Path, repeats), c.conf("bust_polling", 0.60))
		return []models.DetectionContribution{blackboard.WithSignals(contrib, sigs)}, nil
	}
	if buster && noCache {
		contrib := blackboard.Bot(c.name, CatBehavioral, "cache buster with client no-cache directive", c.conf("bust_single", 0.40))
		return []models.DetectionContribution{blackboard.WithSignals(contrib, sigs)}, nil
	}
	return []models.DetectionContribution{blackboard.WithSignals(blackboard.Neutral(c.name, CatBehavioral, "hard-reload cache semantics"), sigs)}, nil
}

func hasBusterParam(query string) bool {
	values, err := url.ParseQuery(query)
	if err != nil {
		return false
	}
	for _, p := range busterParams {
		if _, ok := values[p]; ok {
			return true
		}
	}
	return false
}
