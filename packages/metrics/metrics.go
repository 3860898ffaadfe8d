// Package metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metasearch_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_name"},
	)
	RequestCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metasearch_request_cache_total",
			Help: "Outbound request lookups, labeled by hit, miss or shared (joined an in-flight execution).",
		},
		[]string{"result"},
	)
	TransportRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metasearch_transport_requests_total",
			Help: "Requests sent to indexer sites, labeled by status class (2xx, 4xx, error...).",
		},
		[]string{"status_class"},
	)
	IndexerSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metasearch_indexer_searches_total",
			Help: "Per-indexer search outcomes.",
		},
		[]string{"indexer", "status"},
	)
	IndexerSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metasearch_indexer_search_duration_seconds",
			Help:    "Time spent running one indexer definition, login included.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"indexer"},
	)
	DefinitionsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metasearch_definitions_loaded",
			Help: "Number of indexer definitions in the active registry.",
		},
	)
)

func init() {
	prometheus.MustRegister(DBQueryDuration)
	prometheus.MustRegister(RequestCache)
	prometheus.MustRegister(TransportRequests)
	prometheus.MustRegister(IndexerSearches)
	prometheus.MustRegister(IndexerSearchDuration)
	prometheus.MustRegister(DefinitionsLoaded)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// StatusClass buckets an HTTP status code ("2xx") for the transport counter.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "error"
	}
	return string(rune('0'+code/100)) + "xx"
}
