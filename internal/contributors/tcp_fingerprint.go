package contributors

import (
	"context"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// TCPFingerprint infers the sender's OS family from IP TTL and initial
// window size, p0f style. The inference feeds the correlation contributor;
// on its own a TCP stack is never incriminating.
type TCPFingerprint struct {
	base
}

func NewTCPFingerprint(d Deps) *TCPFingerprint {
	return &TCPFingerprint{base: newBase(d.Config, "tcp_fingerprint", 17, 50)}
}

func (t *TCPFingerprint) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	tr := s.Request.Transport
	if tr == nil || tr.TCPTTL == 0 {
		return []models.DetectionContribution{blackboard.Info(t.name, CatIdentity, "no TCP telemetry on this connection")}, nil
	}

	inferred := inferOSFromStack(tr.TCPTTL, tr.TCPWindow)
	sigs := map[string]any{
		signals.TCPTTL:    tr.TCPTTL,
		signals.TCPWindow: tr.TCPWindow,
	}
	if inferred != "" {
		sigs[signals.TCPInferredOS] = inferred
	}

	return []models.DetectionContribution{
		blackboard.WithSignals(blackboard.Info(t.name, CatIdentity, "TCP stack observed"), sigs),
	}, nil
}

// inferOSFromStack guesses the OS family from observed TTL and window size.
// TTLs decay in transit, so we bucket by the nearest common initial value
// (64 for Linux/macOS, 128 for Windows).
func inferOSFromStack(ttl, window int) string {
	switch {
	case ttl > 128:
		return "" // 255-initial stacks (Solaris, some routers): no call
	case ttl > 64:
		return "windows"
	case ttl > 0:
		if window == 65535 {
			return "macos"
		}
		return "linux"
	}
	return ""
}
