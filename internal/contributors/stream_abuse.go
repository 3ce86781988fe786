package contributors

import (
	"context"
	"fmt"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// StreamAbuse gates on the protocol classifier having seen a streaming
// exchange, then scores the streaming history: upgrade storms, reconnect
// loops, and mixing heavy scraping with open streams.
type StreamAbuse struct {
	base
	windows *windows.Store
}

func NewStreamAbuse(d Deps) *StreamAbuse {
	return &StreamAbuse{
		base: newBase(d.Config, "stream_abuse", 34, 50,
			blackboard.AnyOf{
				blackboard.SignalExists(signals.ProtoKind),
				blackboard.SignalExists(signals.HeaderIsUpgradeWS),
			}),
		windows: d.Windows,
	}
}

func (a *StreamAbuse) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	if a.windows == nil {
		return []models.DetectionContribution{blackboard.Info(a.name, CatSession, "window store not configured")}, nil
	}

	req := s.Request
	entry, ok := a.windows.Peek(patterns.Signature(req.ClientIP, req.UserAgent()))
	if !ok {
		return []models.DetectionContribution{blackboard.Info(a.name, CatSession, "no streaming history")}, nil
	}

	var upgrades, reconnects, streamEndpoints, pages int
	entry.Visit(func(e *windows.Entry) {
		upgrades = len(e.WSUpgrades)
		reconnects = len(e.SSEReconnects)
		pages = e.PageCount
		seen := map[string]struct{}{}
		for _, ev := range e.Requests {
			if windows.ClassifyPath(ev.Path) == windows.ClassAPI {
				seen[ev.Path] = struct{}{}
			}
		}
		streamEndpoints = len(seen)
	})

	sigs := map[string]any{
		signals.StreamWSStorm:        upgrades,
		signals.StreamSSEReconnects:  reconnects,
		signals.StreamEndpointSpread: streamEndpoints,
	}

	var out []models.DetectionContribution
	add := func(c models.DetectionContribution) {
		if sigs != nil {
			c = blackboard.WithSignals(c, sigs)
			sigs = nil
		}
		out = append(out, c)
	}

	if upgrades >= a.intParam("ws_storm", 10) {
		add(blackboard.StrongBot(a.name, CatSession, fmt.Sprintf("%d WebSocket upgrades in window", upgrades), a.conf("ws_storm", 0.85)))
	}
	if reconnects >= a.intParam("sse_reconnects", 20) {
		add(blackboard.Bot(a.name, CatSession, fmt.Sprintf("%d SSE reconnects in window", reconnects), a.conf("sse_loop", 0.70)))
	}
	if streamEndpoints >= a.intParam("endpoint_spread", 5) && upgrades+reconnects > 0 {
		add(blackboard.Bot(a.name, CatSession, fmt.Sprintf("streams plus %d distinct API endpoints", streamEndpoints), a.conf("spread", 0.60)))
	}
	if (upgrades > 0 || reconnects > 0) && pages >= a.intParam("mixed_pages", 20) {
		sigsMixed := map[string]any{signals.StreamMixedScraping: true}
		c := blackboard.Bot(a.name, CatSession, "open streams alongside bulk page pulls", a.conf("mixed", 0.50))
		out = append(out, blackboard.WithSignals(c, sigsMixed))
	}

	if len(out) == 0 {
		add(blackboard.Neutral(a.name, CatSession, "ordinary streaming usage"))
	}
	return out, nil
}
