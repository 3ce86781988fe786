// Package metrics carries the engine's Prometheus instrumentation and the
// partition-comparison math used by shadow drift reports.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "requests_total",
		Help:      "Requests analyzed, labeled by final risk band.",
	}, []string{"risk_band"})

	processingSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "processing_seconds",
		Help:      "End-to-end analysis latency per request.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	botProbability = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "bot_probability",
		Help:      "Distribution of final bot probabilities.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	detectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "detector_failures_total",
		Help:      "Contributors that timed out, errored, or panicked.",
	}, []string{"detector"})

	fastPathExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "fastpath_exits_total",
		Help:      "Requests short-circuited by the reputation fast path.",
	}, []string{"kind"})

	intentCategories = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "intent_total",
		Help:      "Requests by classified session intent.",
	}, []string{"intent"})

	alertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "alerts_total",
		Help:      "Alerts emitted, labeled by severity.",
	}, []string{"severity"})

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "stream_clients",
		Help:      "Connected verdict-stream WebSocket clients.",
	})
)

// ObserveVerdict records one finished analysis.
func ObserveVerdict(ev models.AggregatedEvidence) {
	requestsTotal.WithLabelValues(string(ev.RiskBand)).Inc()
	processingSeconds.Observe(ev.TotalProcessingMs / 1000)
	botProbability.Observe(ev.BotProbability)
	for _, name := range ev.FailedDetectors {
		detectorFailures.WithLabelValues(name).Inc()
	}
	if kind, ok := ev.Signals[signals.RepFastPath].(string); ok && kind != "" {
		fastPathExits.WithLabelValues(kind).Inc()
	}
	if ev.IntentCategory != "" {
		intentCategories.WithLabelValues(string(ev.IntentCategory)).Inc()
	}
}

// ObserveAlert records one emitted alert.
func ObserveAlert(severity string) {
	alertsEmitted.WithLabelValues(severity).Inc()
}

// StreamClientConnected / StreamClientDisconnected track the WebSocket gauge.
func StreamClientConnected()    { wsClients.Inc() }
func StreamClientDisconnected() { wsClients.Dec() }

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
