package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// incident clustering service.
type Metrics struct {
	PostsConsumed prometheus.Counter
	PostsIngested *prometheus.CounterVec // labels: outcome={created,merged}
	PostsDropped  *prometheus.CounterVec // labels: reason={not_disaster_related,unresolvable_location,invalid_severity,malformed,duplicate}
	MatchDuration prometheus.Histogram

	ActiveIncidents  prometheus.Gauge
	SnapshotsWritten prometheus.Counter
	ConsumerRunning  prometheus.Gauge

	// Regeneration metrics.
	RegenerationRuns     *prometheus.CounterVec // labels: outcome={success,cancelled,error}
	RegenerationDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PostsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_cluster",
			Name:      "posts_consumed_total",
			Help:      "Total classified posts read from the source topic.",
		}),
		PostsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_cluster",
			Name:      "posts_ingested_total",
			Help:      "Posts accepted into the store by outcome.",
		}, []string{"outcome"}),
		PostsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_cluster",
			Name:      "posts_dropped_total",
			Help:      "Posts rejected before clustering by reason.",
		}, []string{"reason"}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_cluster",
			Name:      "match_duration_seconds",
			Help:      "Duration of a single cluster-match plus store update.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		ActiveIncidents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "incident_cluster",
			Name:      "active_incidents",
			Help:      "Number of incidents currently in active status.",
		}),
		SnapshotsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_cluster",
			Name:      "snapshots_written_total",
			Help:      "Total incident snapshots published to the sink topic.",
		}),
		ConsumerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "incident_cluster",
			Name:      "consumer_running",
			Help:      "1 when the Kafka consumer loop is active, 0 when shut down.",
		}),
		RegenerationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_cluster",
			Name:      "regeneration_runs_total",
			Help:      "Batch regeneration runs by outcome.",
		}, []string{"outcome"}),
		RegenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_cluster",
			Name:      "regeneration_duration_seconds",
			Help:      "Duration of a complete corpus regeneration run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_cluster",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_cluster",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_cluster",
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "incident_cluster",
			Name:      "geocode_enabled",
			Help:      "1 when location geocoding is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.PostsConsumed,
		m.PostsIngested,
		m.PostsDropped,
		m.MatchDuration,
		m.ActiveIncidents,
		m.SnapshotsWritten,
		m.ConsumerRunning,
		m.RegenerationRuns,
		m.RegenerationDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PostsConsumed:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "incident_cluster", Name: "posts_consumed_total"}),
		PostsIngested:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "incident_cluster", Name: "posts_ingested_total"}, []string{"outcome"}),
		PostsDropped:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "incident_cluster", Name: "posts_dropped_total"}, []string{"reason"}),
		MatchDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "incident_cluster", Name: "match_duration_seconds"}),
		ActiveIncidents:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "incident_cluster", Name: "active_incidents"}),
		SnapshotsWritten:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "incident_cluster", Name: "snapshots_written_total"}),
		ConsumerRunning:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "incident_cluster", Name: "consumer_running"}),
		RegenerationRuns:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "incident_cluster", Name: "regeneration_runs_total"}, []string{"outcome"}),
		RegenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "incident_cluster", Name: "regeneration_duration_seconds"}),
		GeocodeRequests:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "incident_cluster", Name: "geocode_requests_total"}, []string{"outcome"}),
		GeocodeCache:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "incident_cluster", Name: "geocode_cache_total"}, []string{"result"}),
		GeocodeAPIDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "incident_cluster", Name: "geocode_api_duration_seconds"}),
		GeocodeEnabled:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "incident_cluster", Name: "geocode_enabled"}),
	}
}
