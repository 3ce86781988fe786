package contributors

import (
	"context"
	"fmt"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/reputation"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Geo resolves the client's country, tracks mid-session country changes (a
// signature hopping countries inside one window is proxy rotation, not
// travel), and folds in the per-country bot-rate prior.
type Geo struct {
	base
	resolver  GeoResolver
	windows   *windows.Store
	countries *reputation.CountryTracker
}

func NewGeo(d Deps) *Geo {
	return &Geo{
		base:      newBase(d.Config, "geo", 21, 50),
		resolver:  d.Geo,
		windows:   d.Windows,
		countries: d.Countries,
	}
}

func (g *Geo) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	if g.resolver == nil {
		return []models.DetectionContribution{blackboard.Info(g.name, CatBehavioral, "geo resolver not configured")}, nil
	}

	req := s.Request
	country := g.resolver.Country(req.ClientIP)
	if country == "" {
		return []models.DetectionContribution{blackboard.Info(g.name, CatBehavioral, "country unresolved")}, nil
	}

	sigs := map[string]any{signals.GeoCountry: country}
	var out []models.DetectionContribution

	if g.windows != nil {
		sig := patterns.Signature(req.ClientIP, req.UserAgent())
		changed := g.windows.RecordCountry(sig, country, req.ReceivedAt)
		sigs[signals.GeoChanged] = changed
		if changed {
			c := blackboard.StrongBot(g.name, CatBehavioral, "country changed mid-session (proxy rotation)", g.conf("country_hop", 0.75))
			out = append(out, blackboard.WithSignals(c, sigs))
			sigs = nil
		}
	}

	if g.countries != nil {
		rate := g.countries.GetCountryBotRate(country)
		highRate := g.param("high_bot_rate", 0.80)
		if rate >= highRate {
			c := blackboard.Bot(g.name, CatBehavioral, fmt.Sprintf("origin country %s runs %.0f%% bot traffic", country, rate*100), g.conf("hot_country", 0.25))
			out = append(out, blackboard.WithSignals(c, sigs))
			sigs = nil
		}
	}

	if len(out) == 0 {
		out = append(out, blackboard.WithSignals(blackboard.Info(g.name, CatBehavioral, "origin "+country), sigs))
	}
	return out, nil
}
