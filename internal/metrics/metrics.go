// Package metrics holds the prometheus collectors shared by the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricealert_fetches_total",
			Help: "Page fetches by store and outcome (ok, http_error, timeout, error).",
		},
		[]string{"store", "outcome"},
	)

	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricealert_fetch_duration_seconds",
			Help:    "Page fetch latency by store.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 6, 12},
		},
		[]string{"store"},
	)

	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricealert_provider_calls_total",
			Help: "Search provider calls by provider and outcome (urls, items, empty, disabled, error).",
		},
		[]string{"provider", "outcome"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricealert_cache_lookups_total",
			Help: "Cache lookups by backend and result.",
		},
		[]string{"backend", "result"},
	)

	Equivalences = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricealert_equivalence_runs_total",
			Help: "Equivalence resolutions by method (cache, ai, serp, fallback, disabled).",
		},
		[]string{"method"},
	)

	EquivalenceItems = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricealert_equivalence_items",
			Help:    "Accepted offers per equivalence resolution.",
			Buckets: prometheus.LinearBuckets(0, 1, 9),
		},
	)

	Ingests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricealert_ingests_total",
			Help: "Ingestions by outcome (created, updated, existing, no_price, fetch_failed, error).",
		},
		[]string{"outcome"},
	)

	PoolWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricealert_pool_waits_total",
			Help: "Times a job waited for a free per-domain slot.",
		},
	)

	Retries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricealert_retries_total",
			Help: "Retried jobs after a 429 or 403.",
		},
	)
)

// Registry holds every collector above plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		Fetches,
		FetchDuration,
		ProviderCalls,
		CacheLookups,
		Equivalences,
		EquivalenceItems,
		Ingests,
		PoolWaits,
		Retries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves Registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
