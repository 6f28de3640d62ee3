// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daelsp_requests_total",
		Help: "Requests and notifications handled, by method and outcome",
	}, []string{"method", "outcome"})

	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "daelsp_request_duration_seconds",
		Help:    "Time from receiving a message to finishing it",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method"})

	Cancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daelsp_cancelled_requests_total",
		Help: "Requests answered with RequestCancelled",
	})

	AnalysisPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daelsp_analysis_passes_total",
		Help: "Analysis passes, by whether they were published or superseded",
	}, []string{"result"})

	AnalysisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "daelsp_analysis_duration_seconds",
		Help:    "Duration of one analysis pass",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	ParsedNodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daelsp_parse_nodes_total",
		Help: "Syntax nodes produced by incremental parses, reused or parsed anew",
	}, []string{"origin"})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "daelsp_sessions",
		Help: "Open client sessions",
	})

	IndexedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daelsp_indexed_files_total",
		Help: "Workspace files indexed, by source",
	}, []string{"source"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
