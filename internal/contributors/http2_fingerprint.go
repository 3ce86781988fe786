package contributors

import (
	"context"
	"strings"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// AKAMAI-style HTTP/2 SETTINGS fingerprints (settings order and values,
// window update, priority frames). Unlike JA3 these are stable across point
// releases, so the table ages well.
var knownH2 = map[string]string{
	"1:65536;2:0;4:6291456;6:262144|15663105|0|m,a,s,p": "chrome",
	"1:65536;2:0;4:131072;5:16384|12517377|3:0:0:201,5:0:0:101,7:0:0:1,9:0:7:1,11:0:3:1,13:0:0:241|m,p,a,s": "firefox",
	"4:4194304;3:100|10485760|0|m,s,p,a": "safari",
	"3:100;4:10485760|1048576|0|m,p,a,s": "tool:go-http",
}

// HTTP2Fingerprint labels the client from its SETTINGS frame shape. A
// connection that negotiated down to HTTP/1.1 leans mildly bot; a request
// with no transport visibility at all yields only an Info record.
type HTTP2Fingerprint struct {
	base
}

func NewHTTP2Fingerprint(d Deps) *HTTP2Fingerprint {
	return &HTTP2Fingerprint{base: newBase(d.Config, "http2_fingerprint", 15, 50)}
}

func (h *HTTP2Fingerprint) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	tr := s.Request.Transport
	if tr == nil {
		return []models.DetectionContribution{blackboard.Info(h.name, CatIdentity, "no transport visibility on this connection")}, nil
	}
	if tr.H2Settings == "" {
		// We can see the transport, so an empty fingerprint means the client
		// actually settled for HTTP/1.1. Every mainstream browser has spoken
		// h2 for years; plenty of scripted clients have not.
		if strings.HasPrefix(s.Request.Proto, "HTTP/1.") {
			sigs := map[string]any{signals.H2FingerprintPresent: false}
			c := blackboard.Bot(h.name, CatIdentity, "negotiated HTTP/1.1 despite transport visibility", h.conf("http1_negotiated", 0.30))
			return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
		}
		return []models.DetectionContribution{blackboard.Info(h.name, CatIdentity, "no HTTP/2 fingerprint captured")}, nil
	}

	sigs := map[string]any{
		signals.H2FingerprintPresent: true,
		signals.H2Fingerprint:        tr.H2Settings,
	}

	label, known := knownH2[tr.H2Settings]
	if !known {
		return []models.DetectionContribution{
			blackboard.WithSignals(blackboard.Neutral(h.name, CatIdentity, "unrecognized HTTP/2 SETTINGS shape"), sigs),
		}, nil
	}

	sigs[signals.H2ClientLabel] = label
	if strings.HasPrefix(label, "tool:") {
		c := blackboard.Bot(h.name, CatIdentity, "HTTP/2 SETTINGS of "+strings.TrimPrefix(label, "tool:"), h.conf("tool_fingerprint", 0.70))
		return []models.DetectionContribution{blackboard.WithSignals(blackboard.WithType(c, models.BotTypeScraper, ""), sigs)}, nil
	}
	return []models.DetectionContribution{
		blackboard.WithSignals(blackboard.Human(h.name, CatIdentity, "HTTP/2 SETTINGS of a mainstream browser", h.conf("browser_fingerprint", 0.25)), sigs),
	}, nil
}
