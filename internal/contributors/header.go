package contributors

import (
	"context"
	"strings"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Header checks the request header set for browser plausibility: real
// browsers send a rich, predictable set (Accept, Accept-Language,
// Accept-Encoding, client hints, cookies); minimal header sets are the
// hallmark of scripted clients.
type Header struct {
	base
}

func NewHeader(d Deps) *Header {
	return &Header{base: newBase(d.Config, "header", 12, 50)}
}

func (h *Header) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	req := s.Request

	hasAccept := req.HasHeader("Accept")
	hasLanguage := req.HasHeader("Accept-Language")
	hasSecChUA := req.HasHeader("Sec-Ch-Ua")
	hasCookies := req.HasHeader("Cookie")
	hasReferer := req.HasHeader("Referer")
	isWSUpgrade := strings.EqualFold(req.Header("Upgrade"), "websocket")

	sigs := map[string]any{
		signals.HeaderCount:           req.HeaderCount(),
		signals.HeaderMissingAccept:   !hasAccept,
		signals.HeaderMissingLanguage: !hasLanguage,
		signals.HeaderHasSecChUA:      hasSecChUA,
		signals.HeaderHasCookies:      hasCookies,
		signals.HeaderRefererPresent:  hasReferer,
	}
	// Written only on a real upgrade: stream_abuse triggers on the key's
	// presence, not its value.
	if isWSUpgrade {
		sigs[signals.HeaderIsUpgradeWS] = true
	}
	if al := req.Header("Accept-Language"); al != "" {
		sigs[signals.HeaderAcceptLanguage] = al
	}

	looksBrowser := s.SignalString(signals.UABrowser) != ""

	var out []models.DetectionContribution

	minHeaders := h.intParam("min_browser_headers", 4)
	switch {
	case req.HeaderCount() <= minHeaders && looksBrowser:
		c := blackboard.StrongBot(h.name, CatIdentity, "browser UA with a scripted header set", h.conf("sparse_headers", 0.70))
		out = append(out, blackboard.WithSignals(c, sigs))
	case !hasLanguage && looksBrowser:
		c := blackboard.Bot(h.name, CatIdentity, "browser UA without Accept-Language", h.conf("missing_language", 0.55))
		out = append(out, blackboard.WithSignals(c, sigs))
	case !hasAccept:
		c := blackboard.Bot(h.name, CatIdentity, "no Accept header", h.conf("missing_accept", 0.45))
		out = append(out, blackboard.WithSignals(c, sigs))
	case hasSecChUA && hasLanguage:
		c := blackboard.Human(h.name, CatIdentity, "full modern browser header set", h.conf("rich_headers", 0.40))
		out = append(out, blackboard.WithSignals(c, sigs))
	default:
		out = append(out, blackboard.WithSignals(blackboard.Neutral(h.name, CatIdentity, "unremarkable header set"), sigs))
	}

	// Returning cookies means the client completed an earlier full
	// round-trip; cheap scripts rarely bother.
	if hasCookies {
		out = append(out, blackboard.Human(h.name, CatIdentity, "session cookies present", h.conf("cookies", 0.20)))
	}

	return out, nil
}
