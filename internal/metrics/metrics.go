package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache hits per cache instance and tier (l1 | l2).
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits, labelled by cache instance and tier.",
		},
		[]string{"cache", "tier"},
	)

	// Full misses (both tiers empty).
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses across both tiers.",
		},
		[]string{"cache"},
	)

	// Degraded cache operations: L2 unreachable or payload corrupt.
	CacheDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_degraded_total",
			Help: "Cache operations that degraded because L2 failed.",
		},
		[]string{"cache", "op"},
	)

	// Upstream GitHub calls by outcome (ok | not_found | rate_limited |
	// unauthorized | error).
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "GitHub API requests issued, labelled by outcome.",
		},
		[]string{"outcome"},
	)

	// Gauge: upstream fetches currently in flight. Bounded by the batch
	// fetcher's concurrency limit.
	UpstreamInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "upstream_in_flight",
			Help: "Number of upstream fetches currently in flight.",
		},
	)

	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		CacheDegradedTotal,
		UpstreamRequestsTotal,
		UpstreamInFlight,
		GatewayLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		GatewayLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
