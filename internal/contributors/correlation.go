package contributors

import (
	"context"
	"strings"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Correlation runs after the identity wave and cross-checks its facts
// against each other. Any single layer is spoofable; keeping every layer
// consistent at once is what scripted clients fail at. A clean cross-check
// is equally informative in the human direction.
type Correlation struct {
	base
}

func NewCorrelation(d Deps) *Correlation {
	return &Correlation{
		base: newBase(d.Config, "correlation", 40, 50, blackboard.DetectorCount(5)),
	}
}

func (c *Correlation) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	uaOS := s.SignalString(signals.UAOS)
	uaBrowser := s.SignalString(signals.UABrowser)
	tcpOS := s.SignalString(signals.TCPInferredOS)
	tlsLabel := s.SignalString(signals.TLSClientLabel)
	h2Label := s.SignalString(signals.H2ClientLabel)

	var out []models.DetectionContribution
	checks := 0

	// UA-claimed OS vs TCP stack. Linux and macOS share a 64 TTL so only the
	// windows/non-windows axis is trustworthy.
	if uaOS != "" && tcpOS != "" {
		checks++
		if (uaOS == "windows") != (tcpOS == "windows") {
			contrib := blackboard.StrongBot(c.name, CatIdentity, "UA claims "+uaOS+" but TCP stack is "+tcpOS, c.conf("os_mismatch", 0.80))
			out = append(out, blackboard.WithSignals(contrib, map[string]any{signals.CorrOSMismatch: true}))
		}
	}

	// UA-claimed browser vs TLS fingerprint label.
	if uaBrowser != "" && tlsLabel != "" {
		checks++
		if strings.HasPrefix(tlsLabel, "tool:") {
			contrib := blackboard.StrongBot(c.name, CatIdentity, "browser UA over a "+strings.TrimPrefix(tlsLabel, "tool:")+" TLS stack", c.conf("tls_implausible", 0.85))
			out = append(out, blackboard.WithSignals(contrib, map[string]any{signals.CorrTLSImplausible: true}))
		} else if tlsLabel != uaBrowser {
			contrib := blackboard.StrongBot(c.name, CatIdentity, "UA claims "+uaBrowser+" but TLS fingerprint is "+tlsLabel, c.conf("browser_mismatch", 0.75))
			out = append(out, blackboard.WithSignals(contrib, map[string]any{signals.CorrBrowserMismatch: true}))
		}
	}

	// Same cross against the HTTP/2 shape.
	if uaBrowser != "" && h2Label != "" && !strings.HasPrefix(h2Label, "tool:") {
		checks++
		if h2Label != uaBrowser {
			contrib := blackboard.Bot(c.name, CatIdentity, "UA claims "+uaBrowser+" but HTTP/2 shape is "+h2Label, c.conf("h2_mismatch", 0.60))
			out = append(out, blackboard.WithSignals(contrib, map[string]any{signals.CorrBrowserMismatch: true}))
		}
	}

	// Consumer browser UA dialing in from hosting space.
	if uaBrowser != "" && s.SignalBool(signals.IPIsDatacenter) {
		checks++
		contrib := blackboard.Bot(c.name, CatIdentity, "consumer browser UA from "+s.SignalString(signals.IPASNOrg)+" address space", c.conf("dc_consumer", 0.60))
		out = append(out, blackboard.WithSignals(contrib, map[string]any{signals.CorrDCConsumerUA: true}))
	}

	// Accept-Language region vs resolved country.
	lang := s.SignalString(signals.HeaderAcceptLanguage)
	country := s.SignalString(signals.GeoCountry)
	if lang != "" && country != "" {
		checks++
		if regions := languageRegions(lang); len(regions) > 0 && !regions[strings.ToUpper(country)] {
			contrib := blackboard.Bot(c.name, CatIdentity, "Accept-Language regions exclude origin country "+country, c.conf("lang_geo", 0.35))
			out = append(out, blackboard.WithSignals(contrib, map[string]any{signals.CorrLangGeoMismatch: true}))
		}
	}

	if len(out) == 0 {
		if checks >= 2 {
			contrib := blackboard.Human(c.name, CatIdentity, "all identity layers agree", c.conf("consistent", 0.35))
			return []models.DetectionContribution{blackboard.WithSignals(contrib, map[string]any{signals.CorrConsistent: true})}, nil
		}
		return []models.DetectionContribution{blackboard.Info(c.name, CatIdentity, "too few layers to cross-check")}, nil
	}
	return out, nil
}

// languageRegions extracts region subtags from an Accept-Language value:
// "en-US,en;q=0.9,de-DE" -> {US, DE}. No subtags means no opinion.
func languageRegions(header string) map[string]bool {
	out := map[string]bool{}
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		pieces := strings.Split(tag, "-")
		if len(pieces) == 2 && len(pieces[1]) == 2 {
			out[strings.ToUpper(pieces[1])] = true
		}
	}
	return out
}
