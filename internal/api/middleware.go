package api

import (
	"crypto/tls"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Inline enforcement.
//
// Middleware runs the engine against every request of the host application
// and annotates the response with the verdict. Enforcement is opt-in: with
// BlockAt <= 0 the middleware only observes, which is the recommended mode
// for the first weeks of a deployment.

// MiddlewareOptions tunes the inline detection middleware.
type MiddlewareOptions struct {
	// BlockAt is the bot probability at which requests are rejected with
	// 403. Zero disables blocking (observe-only).
	BlockAt float64
	// BlockOnFastAbort rejects fast-path reputation aborts regardless of
	// BlockAt.
	BlockOnFastAbort bool
	// SkipPaths are never analyzed (health checks, static assets).
	SkipPaths []string
}

// Middleware returns a gin handler that scores each request in-process.
// The verdict is stored in the gin context under "detection" and summarized
// in response headers for downstream proxies.
func (h *APIHandler) Middleware(opts MiddlewareOptions) gin.HandlerFunc {
	skip := make(map[string]bool, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		snap := SnapshotFromRequest(c.Request, c.ClientIP())
		ev := h.analyze(c.Request.Context(), snap)

		c.Set("detection", ev)
		c.Header("X-Bot-Probability", strconv.FormatFloat(ev.BotProbability, 'f', 3, 64))
		c.Header("X-Risk-Band", string(ev.RiskBand))

		fastAbort, _ := ev.Signals[signals.RepFastPath].(string)
		shouldBlock := (opts.BlockAt > 0 && ev.BotProbability >= opts.BlockAt) ||
			(opts.BlockOnFastAbort && fastAbort == "abort")
		if shouldBlock {
			c.JSON(http.StatusForbidden, gin.H{
				"error":    "Request blocked",
				"riskBand": ev.RiskBand,
			})
			c.Abort()
			h.backfillResponse(c, snap)
			return
		}

		c.Next()
		h.backfillResponse(c, snap)
	}
}

// backfillResponse amends the just-recorded window event with what only the
// response could tell us: the status code, the real content class, and
// whether a login attempt failed. The next request from the same signature
// sees the corrected history.
func (h *APIHandler) backfillResponse(c *gin.Context, snap *models.RequestSnapshot) {
	if h.windows == nil {
		return
	}
	sig := patterns.Signature(snap.ClientIP, snap.UserAgent())
	status := c.Writer.Status()

	h.windows.UpdateLast(sig, func(ev *windows.RequestEvent) {
		ev.Status = status
		if class := windows.ClassifyContentType(c.Writer.Header().Get("Content-Type")); class != "" {
			ev.ContentClass = class
		}
	})

	if snap.Method == "POST" && windows.IsLoginPath(snap.Path) &&
		(status == http.StatusUnauthorized || status == http.StatusForbidden) {
		h.windows.MarkLastLoginFailed(sig)
	}
}

// SnapshotFromRequest builds the immutable engine input from a live request.
// clientIP is passed separately so the caller's proxy resolution applies.
func SnapshotFromRequest(r *http.Request, clientIP string) *models.RequestSnapshot {
	headers := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = append([]string(nil), v...)
	}

	scheme := "http"
	var transport *models.TransportInfo
	if r.TLS != nil {
		scheme = "https"
		transport = &models.TransportInfo{
			TLS: &models.TLSInfo{
				Version:     tlsVersionName(r.TLS.Version),
				CipherSuite: tls.CipherSuiteName(r.TLS.CipherSuite),
				ALPN:        r.TLS.NegotiatedProtocol,
				SNI:         r.TLS.ServerName,
			},
		}
	}

	return &models.RequestSnapshot{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.RawQuery,
		Proto:      r.Proto,
		Scheme:     scheme,
		Host:       r.Host,
		ClientIP:   clientIP,
		Headers:    headers,
		Transport:  transport,
		ReceivedAt: time.Now(),
	}
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS13:
		return "TLS1.3"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS10:
		return "TLS1.0"
	default:
		return ""
	}
}
