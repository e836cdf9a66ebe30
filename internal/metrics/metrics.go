// Package metrics holds the Prometheus instruments of the analysis
// pipeline. All collectors live on a private registry served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	AnalyzerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoanalysis",
		Name:      "analyzer_calls_total",
		Help:      "RPC calls to analyzer backends by route and outcome.",
	}, []string{"route", "outcome"})

	AnalyzerCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autoanalysis",
		Name:      "analyzer_call_duration_seconds",
		Help:      "Latency of analyzer backend RPC calls.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"route"})

	RegisteredAnalyzers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "autoanalysis",
		Name:      "registered_analyzers",
		Help:      "Analyzer backends currently registered.",
	})

	IndexedLogs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autoanalysis",
		Name:      "indexed_logs_total",
		Help:      "Logs reported as indexed by analyzer backends.",
	})

	IndexedPages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autoanalysis",
		Name:      "indexed_launch_pages_total",
		Help:      "Launch id pages processed by the batch indexer.",
	})

	PatternMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoanalysis",
		Name:      "pattern_matches_total",
		Help:      "Pattern matches persisted, by template type.",
	}, []string{"type"})

	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autoanalysis",
		Name:      "event_publish_failures_total",
		Help:      "Domain events that failed to publish after a successful write.",
	})

	IssuesApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autoanalysis",
		Name:      "issues_applied_total",
		Help:      "Test item issues updated from analyzer proposals.",
	})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autoanalysis",
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Duration of pipeline stages.",
	}, []string{"pipeline", "stage", "outcome"})

	Jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoanalysis",
		Name:      "jobs_total",
		Help:      "Background jobs by type and final status.",
	}, []string{"type", "status"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		AnalyzerCalls,
		AnalyzerCallDuration,
		RegisteredAnalyzers,
		IndexedLogs,
		IndexedPages,
		PatternMatches,
		PublishFailures,
		IssuesApplied,
		StageDuration,
		Jobs,
	)
}

// Handler serves the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
