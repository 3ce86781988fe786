package contributors

import (
	"context"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// HTTP3Fingerprint reads QUIC transport parameters. HTTP/3 support is still
// mostly a browser trait; the scraping ecosystem largely stops at HTTP/2, so
// a genuine h3 connection leans lightly human.
type HTTP3Fingerprint struct {
	base
}

func NewHTTP3Fingerprint(d Deps) *HTTP3Fingerprint {
	return &HTTP3Fingerprint{base: newBase(d.Config, "http3_fingerprint", 16, 50)}
}

func (h *HTTP3Fingerprint) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	tr := s.Request.Transport
	isH3 := s.Request.Proto == "HTTP/3"
	if !isH3 && (tr == nil || tr.QUICParams == "") {
		return []models.DetectionContribution{blackboard.Info(h.name, CatIdentity, "not an HTTP/3 connection")}, nil
	}

	sigs := map[string]any{signals.H3Present: true}
	if tr != nil && tr.QUICParams != "" {
		sigs[signals.H3ClientLabel] = tr.QUICParams
	}

	c := blackboard.Human(h.name, CatIdentity, "HTTP/3 connection", h.conf("h3_connection", 0.20))
	return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
}
