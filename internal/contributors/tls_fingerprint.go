package contributors

import (
	"context"
	"strings"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Known JA3 fingerprints. The shipped table covers the clients we see most;
// operators extend it via the ja3_overrides manifest parameter at their own
// risk (JA3 churns with every browser release).
var knownJA3 = map[string]string{
	// Browsers
	"cd08e31494f9531f560d64c695473da9": "chrome",
	"b32309a26951912be7dba376398abc3b": "chrome",
	"579ccef312d18482fc42e2b822ca2430": "firefox",
	"aa7744226c695c0b2e440419848cf700": "safari",
	// Tools
	"3b5074b1b5d032e5620f69f9f700ff0e": "tool:python-requests",
	"e7d705a3286e19ea42f587b344ee6865": "tool:curl",
	"7c410ce832e848a50efa05bd87b0ac08": "tool:go-http",
	"a0e9f5d64349fb13191bc781f81f42e1": "tool:openssl",
}

// TLSFingerprint maps the connection's JA3 hash onto a client label. A label
// disagreeing with the claimed UA is the correlation contributor's catch;
// this one only establishes the facts.
type TLSFingerprint struct {
	base
}

func NewTLSFingerprint(d Deps) *TLSFingerprint {
	return &TLSFingerprint{base: newBase(d.Config, "tls_fingerprint", 14, 50)}
}

func (t *TLSFingerprint) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	tr := s.Request.Transport
	if tr == nil || tr.TLS == nil {
		return []models.DetectionContribution{blackboard.Info(t.name, CatIdentity, "no TLS telemetry on this connection")}, nil
	}
	tls := tr.TLS

	sigs := map[string]any{
		signals.TLSProtocol: tls.Version,
	}
	if tls.JA3 != "" {
		sigs[signals.TLSJA3] = tls.JA3
	}

	var out []models.DetectionContribution

	if tls.Version == "TLS1.0" || tls.Version == "TLS1.1" {
		out = append(out, blackboard.Bot(t.name, CatIdentity, "legacy TLS version "+tls.Version, t.conf("legacy_tls", 0.50)))
	}

	if label, ok := knownJA3[tls.JA3]; ok {
		sigs[signals.TLSKnownClient] = true
		sigs[signals.TLSClientLabel] = label
		if strings.HasPrefix(label, "tool:") {
			c := blackboard.StrongBot(t.name, CatIdentity, "TLS fingerprint of "+strings.TrimPrefix(label, "tool:"), t.conf("tool_fingerprint", 0.85))
			out = append(out, blackboard.WithSignals(blackboard.WithType(c, models.BotTypeScraper, ""), sigs))
		} else {
			out = append(out, blackboard.WithSignals(blackboard.Human(t.name, CatIdentity, "TLS fingerprint of a mainstream browser", t.conf("browser_fingerprint", 0.25)), sigs))
		}
		return out, nil
	}

	sigs[signals.TLSKnownClient] = false
	out = append(out, blackboard.WithSignals(blackboard.Neutral(t.name, CatIdentity, "unrecognized TLS fingerprint"), sigs))
	return out, nil
}
