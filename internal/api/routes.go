package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/sentinel-engine/internal/alerts"
	"github.com/rawblock/sentinel-engine/internal/metrics"
	"github.com/rawblock/sentinel-engine/internal/orchestrator"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/reputation"
	"github.com/rawblock/sentinel-engine/internal/shadow"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// APIHandler wires the detection engine and its stores into the HTTP surface.
// Every field except engine is optional; handlers answer 503 for features
// whose backing service is not configured.
type APIHandler struct {
	engine    *orchestrator.Orchestrator
	repCache  reputation.Cache
	history   *reputation.PostgresStore
	countries *reputation.CountryTracker
	windows   *windows.Store
	alertMgr  *alerts.Manager
	wsHub     *Hub
	shadowRun *shadow.Runner
}

// Deps carries the services the router exposes.
type Deps struct {
	Engine    *orchestrator.Orchestrator
	RepCache  reputation.Cache
	History   *reputation.PostgresStore
	Countries *reputation.CountryTracker
	Windows   *windows.Store
	Alerts    *alerts.Manager
	Hub       *Hub
	Shadow    *shadow.Runner
}

// NewHandler builds the handler set; exported so host applications can mount
// only the inline Middleware without the full router.
func NewHandler(d Deps) *APIHandler {
	return &APIHandler{
		engine:    d.Engine,
		repCache:  d.RepCache,
		history:   d.History,
		countries: d.Countries,
		windows:   d.Windows,
		alertMgr:  d.Alerts,
		wsHub:     d.Hub,
		shadowRun: d.Shadow,
	}
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://sentinel.example.com
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := NewHandler(d)

	limiter := NewRateLimiter(envInt("RATE_LIMIT_PER_MIN", 600), envInt("RATE_LIMIT_BURST", 60))

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		api.POST("/analyze", handler.handleAnalyze)
		api.GET("/health", handler.handleHealth)
		if d.Hub != nil {
			api.GET("/stream", d.Hub.Subscribe)
		}

		protected := api.Group("", AuthMiddleware())
		{
			protected.GET("/reputation/:patternId", handler.handleGetReputation)
			protected.PUT("/reputation/:patternId", handler.handleSetReputation)
			protected.GET("/signature/:signature/history", handler.handleSignatureHistory)
			protected.GET("/countries", handler.handleTopCountries)
			protected.GET("/alerts", handler.handleRecentAlerts)
			protected.GET("/shadow/drift", handler.handleShadowDrift)
		}
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

// handleAnalyze runs the full pipeline on a request snapshot posted by a
// remote enforcement point (edge proxy, load balancer plugin). In-process
// callers use Middleware instead.
func (h *APIHandler) handleAnalyze(c *gin.Context) {
	var snap models.RequestSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request snapshot", "details": err.Error()})
		return
	}
	if snap.ClientIP == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientIp is required"})
		return
	}
	if snap.ReceivedAt.IsZero() {
		snap.ReceivedAt = time.Now()
	}

	ev := h.analyze(c.Request.Context(), &snap)
	c.JSON(http.StatusOK, ev)
}

// analyze is the shared back half of the HTTP endpoint and the inline
// middleware: run the engine, then fan the verdict out to metrics, alerts,
// the live stream, and the shadow runner.
func (h *APIHandler) analyze(ctx context.Context, snap *models.RequestSnapshot) models.AggregatedEvidence {
	ev := h.engine.Process(ctx, snap)
	sig := patterns.Signature(snap.ClientIP, snap.UserAgent())

	metrics.ObserveVerdict(ev)

	if h.alertMgr != nil {
		h.alertMgr.EmitFromEvidence(snap, sig, ev)
	}

	if h.wsHub != nil {
		payload, err := json.Marshal(gin.H{
			"type":     "verdict",
			"clientIp": snap.ClientIP,
			"path":     snap.Path,
			"verdict":  ev,
		})
		if err == nil {
			h.wsHub.Broadcast(payload)
		}
	}

	if h.shadowRun != nil {
		go func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := h.shadowRun.Observe(sctx, sig, ev); err != nil {
				log.Printf("[Shadow] Observe failed: %v", err)
			}
		}()
	}

	return ev
}

// handleHealth returns engine status and capabilities for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	caps := gin.H{
		"wave_scheduling":    true,
		"reputation_cache":   h.repCache != nil,
		"verdict_history":    h.history != nil,
		"country_tracking":   h.countries != nil,
		"alerting":           h.alertMgr != nil,
		"shadow_mode":        h.shadowRun != nil,
		"behavioral_windows": h.windows != nil,
	}

	resp := gin.H{
		"status":       "operational",
		"capabilities": caps,
	}
	if h.windows != nil {
		resp["trackedSignatures"] = h.windows.Len()
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetReputation returns the cached reputation record for a pattern ID
// (ua:<hash>, ip:<cidr>, combined:<hash>).
func (h *APIHandler) handleGetReputation(c *gin.Context) {
	if h.repCache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Reputation cache not configured"})
		return
	}
	id := c.Param("patternId")
	rep, ok := h.repCache.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No reputation record", "patternId": id})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"patternId": rep.PatternID,
		"state":     rep.State.String(),
		"botScore":  rep.BotScore,
		"support":   rep.Support,
	})
}

// handleSetReputation pins a pattern to a manual state. Manual states are
// immutable to the maintenance loop, so this is the operator override for
// false positives and known-bad infrastructure.
// PUT /api/v1/reputation/:patternId { "state": "block" | "allow" | "clear" }
func (h *APIHandler) handleSetReputation(c *gin.Context) {
	if h.repCache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Reputation cache not configured"})
		return
	}

	var req struct {
		State string `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {state: block|allow|clear}"})
		return
	}

	id := c.Param("patternId")
	rep, _ := h.repCache.Get(id)
	rep.PatternID = id

	switch req.State {
	case "block":
		rep.State = models.StateManuallyBlocked
	case "allow":
		rep.State = models.StateManuallyAllowed
	case "clear":
		rep.State = models.StateNeutral
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown state", "allowed": []string{"block", "allow", "clear"}})
		return
	}

	h.repCache.Set(rep)
	log.Printf("[API] Reputation override: %s -> %s", id, rep.State)
	c.JSON(http.StatusOK, gin.H{"patternId": id, "state": rep.State.String()})
}

// handleSignatureHistory returns the long-horizon stats for one client
// signature from the verdict history store.
func (h *APIHandler) handleSignatureHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Verdict history store not connected"})
		return
	}
	stats, err := h.history.GetReputation(c.Request.Context(), c.Param("signature"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signature history", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleTopCountries returns the countries with the highest observed bot
// rates.
func (h *APIHandler) handleTopCountries(c *gin.Context) {
	if h.countries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Country tracking not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	c.JSON(http.StatusOK, gin.H{"data": h.countries.GetTopBotCountries(limit)})
}

// handleRecentAlerts returns recent alerts, newest first, optionally
// filtered by minimum severity.
func (h *APIHandler) handleRecentAlerts(c *gin.Context) {
	if h.alertMgr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alerting not configured"})
		return
	}
	if min := c.Query("minSeverity"); min != "" {
		c.JSON(http.StatusOK, gin.H{"data": h.alertMgr.GetAlertsBySeverity(min)})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{"data": h.alertMgr.GetRecentAlerts(limit)})
}

// handleShadowDrift returns the in-memory drift report for the active shadow
// candidate.
func (h *APIHandler) handleShadowDrift(c *gin.Context) {
	if h.shadowRun == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Shadow mode not enabled"})
		return
	}
	c.JSON(http.StatusOK, h.shadowRun.DriftReport())
}

// BroadcastAlert adapts the hub into the alert manager's broadcast callback.
func BroadcastAlert(wsHub *Hub) func(alerts.Alert) {
	return func(alert alerts.Alert) {
		payload, err := json.Marshal(gin.H{
			"type":  "alert",
			"alert": alert,
		})
		if err != nil {
			return
		}
		wsHub.Broadcast(payload)
		metrics.ObserveAlert(alert.Severity)
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
