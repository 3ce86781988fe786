package contributors

import (
	"context"
	"strings"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// TransportProtocol classifies non-plain-HTTP exchanges (WebSocket, gRPC,
// GraphQL, SSE) and checks the client did the handshake by the book.
// Scripted clients routinely skip the parts a browser cannot: the Origin
// header on upgrade, the exact Sec-WebSocket-Version, HTTP/2 for gRPC.
type TransportProtocol struct {
	base
	windows *windows.Store
}

func NewTransportProtocol(d Deps) *TransportProtocol {
	return &TransportProtocol{
		base:    newBase(d.Config, "transport_protocol", 24, 50),
		windows: d.Windows,
	}
}

func (t *TransportProtocol) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	req := s.Request
	sig := patterns.Signature(req.ClientIP, req.UserAgent())

	switch {
	case strings.EqualFold(req.Header("Upgrade"), "websocket"):
		return t.websocket(s, sig)
	case strings.HasPrefix(req.Header("Content-Type"), "application/grpc"):
		return t.grpc(s)
	case strings.HasPrefix(req.Path, "/graphql"):
		return t.graphql(s)
	case strings.Contains(req.Header("Accept"), "text/event-stream"):
		return t.sse(s, sig)
	}
	return []models.DetectionContribution{blackboard.Info(t.name, CatProtocol, "plain HTTP exchange")}, nil
}

func (t *TransportProtocol) websocket(s *blackboard.State, sig string) ([]models.DetectionContribution, error) {
	req := s.Request
	sigs := map[string]any{signals.ProtoKind: "websocket"}
	if t.windows != nil {
		t.windows.RecordWSUpgrade(sig, req.ReceivedAt)
	}

	// RFC 6455 §4.1: key, version 13, Connection: Upgrade.
	missing := req.Header("Sec-Websocket-Key") == "" ||
		req.Header("Sec-Websocket-Version") != "13" ||
		!strings.Contains(strings.ToLower(req.Header("Connection")), "upgrade")
	if missing {
		sigs[signals.ProtoViolation] = true
		c := blackboard.StrongBot(t.name, CatProtocol, "malformed WebSocket handshake", t.conf("ws_violation", 0.80))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}

	// Browsers always send Origin on upgrade; its absence (or a foreign
	// origin) is the cross-site WebSocket hijack shape.
	origin := req.Header("Origin")
	if origin == "" || (req.Host != "" && !strings.Contains(origin, req.Host)) {
		sigs[signals.ProtoCSWSHSuspect] = true
		c := blackboard.Bot(t.name, CatProtocol, "WebSocket upgrade with absent/foreign Origin", t.conf("cswsh", 0.60))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}

	return []models.DetectionContribution{blackboard.WithSignals(blackboard.Neutral(t.name, CatProtocol, "well-formed WebSocket upgrade"), sigs)}, nil
}

func (t *TransportProtocol) grpc(s *blackboard.State) ([]models.DetectionContribution, error) {
	sigs := map[string]any{signals.ProtoKind: "grpc"}
	if s.Request.Proto != "HTTP/2" {
		sigs[signals.ProtoViolation] = true
		c := blackboard.Bot(t.name, CatProtocol, "gRPC content type over "+s.Request.Proto, t.conf("grpc_violation", 0.65))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}
	if s.Request.Header("Te") == "" {
		// grpc-go and every browser shim send TE: trailers.
		sigs[signals.ProtoViolation] = true
		c := blackboard.Bot(t.name, CatProtocol, "gRPC call without TE: trailers", t.conf("grpc_violation", 0.65))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}
	return []models.DetectionContribution{blackboard.WithSignals(blackboard.Neutral(t.name, CatProtocol, "well-formed gRPC call"), sigs)}, nil
}

func (t *TransportProtocol) graphql(s *blackboard.State) ([]models.DetectionContribution, error) {
	req := s.Request
	sigs := map[string]any{signals.ProtoKind: "graphql"}
	ct := req.Header("Content-Type")
	if req.Method == "POST" && !strings.HasPrefix(ct, "application/json") && !strings.HasPrefix(ct, "application/graphql") {
		sigs[signals.ProtoViolation] = true
		c := blackboard.Bot(t.name, CatProtocol, "GraphQL POST with content type "+ct, t.conf("graphql_violation", 0.50))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}
	return []models.DetectionContribution{blackboard.WithSignals(blackboard.Neutral(t.name, CatProtocol, "GraphQL exchange"), sigs)}, nil
}

func (t *TransportProtocol) sse(s *blackboard.State, sig string) ([]models.DetectionContribution, error) {
	sigs := map[string]any{signals.ProtoKind: "sse"}
	// Last-Event-ID marks a reconnect, which stream_abuse counts.
	if t.windows != nil && s.Request.Header("Last-Event-Id") != "" {
		t.windows.RecordSSEReconnect(sig, s.Request.ReceivedAt)
	}
	return []models.DetectionContribution{blackboard.WithSignals(blackboard.Neutral(t.name, CatProtocol, "SSE subscription"), sigs)}, nil
}
