package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/coaching-console/internal/mutation"
	"github.com/noah-isme/coaching-console/internal/query"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

// MetricsSnapshot summarises cache and mutation activity for the health endpoint.
type MetricsSnapshot struct {
	QueryHits        uint64    `json:"query_hits"`
	QueryStaleServed uint64    `json:"query_stale_served"`
	QueryMisses      uint64    `json:"query_misses"`
	QueryHitRatio    float64   `json:"query_hit_ratio"`
	QueryDiscarded   uint64    `json:"query_discarded"`
	Mutations        uint64    `json:"mutations"`
	MutationFailures uint64    `json:"mutation_failures"`
	RequestsTotal    uint64    `json:"requests_total"`
	AverageRequestMs float64   `json:"average_request_ms"`
	Goroutines       int       `json:"goroutines"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// MetricsService owns the Prometheus registry. It records HTTP traffic and serves as the
// instrumentation sink of the query cache and the mutation pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	queryLookups    *prometheus.CounterVec
	queryFetch      *prometheus.HistogramVec
	queryRetries    *prometheus.CounterVec
	queryDiscarded  *prometheus.CounterVec
	queryHitRatio   prometheus.Gauge
	mutationLatency *prometheus.HistogramVec
	mutationTotal   *prometheus.CounterVec

	hitCount             uint64
	staleCount           uint64
	missCount            uint64
	discardedCount       uint64
	mutationCount        uint64
	mutationFailureCount uint64
	requestCount         uint64
	requestDurationTotal uint64
}

// NewMetricsService registers the console collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	queryLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_lookups_total",
		Help: "Query cache lookups by collection and outcome (hit, stale, miss)",
	}, []string{"collection", "outcome"})

	queryFetch := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "query_fetch_duration_seconds",
		Help:    "Duration of query cache fetches including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection", "result"})

	queryRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "query_fetch_retries_total",
		Help: "Automatic fetch retries issued by the query cache",
	}, []string{"collection"})

	queryDiscarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "query_results_discarded_total",
		Help: "Fetch results dropped because the entry was invalidated while in flight",
	}, []string{"collection"})

	queryHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "query_cache_hit_ratio",
		Help: "Ratio of fresh hits to total query cache lookups",
	})

	mutationLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mutation_duration_seconds",
		Help:    "Duration of remote writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	mutationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mutations_total",
		Help: "Remote writes by operation and result code",
	}, []string{"operation", "code"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, queryLookups, queryFetch, queryRetries, queryDiscarded,
		queryHitRatio, mutationLatency, mutationTotal, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		queryLookups:    queryLookups,
		queryFetch:      queryFetch,
		queryRetries:    queryRetries,
		queryDiscarded:  queryDiscarded,
		queryHitRatio:   queryHitRatio,
		mutationLatency: mutationLatency,
		mutationTotal:   mutationTotal,
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveQueryLookup counts a cache read and refreshes the hit ratio. Stale reads count
// as misses for the ratio because they trigger a fetch.
func (m *MetricsService) ObserveQueryLookup(collection, outcome string) {
	if m == nil {
		return
	}
	m.queryLookups.WithLabelValues(collection, outcome).Inc()
	switch outcome {
	case query.LookupHit:
		atomic.AddUint64(&m.hitCount, 1)
	case query.LookupStale:
		atomic.AddUint64(&m.staleCount, 1)
	default:
		atomic.AddUint64(&m.missCount, 1)
	}
	hits := atomic.LoadUint64(&m.hitCount)
	total := hits + atomic.LoadUint64(&m.staleCount) + atomic.LoadUint64(&m.missCount)
	if total > 0 {
		m.queryHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveQueryFetch records the latency of one fetch cycle.
func (m *MetricsService) ObserveQueryFetch(collection string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = appErrors.FromError(err).Code
	}
	m.queryFetch.WithLabelValues(collection, result).Observe(duration.Seconds())
}

// IncQueryRetry counts an automatic read retry.
func (m *MetricsService) IncQueryRetry(collection string) {
	if m == nil {
		return
	}
	m.queryRetries.WithLabelValues(collection).Inc()
}

// IncQueryDiscarded counts a fetch result dropped by a newer generation.
func (m *MetricsService) IncQueryDiscarded(collection string) {
	if m == nil {
		return
	}
	m.queryDiscarded.WithLabelValues(collection).Inc()
	atomic.AddUint64(&m.discardedCount, 1)
}

// ObserveMutation records one remote write.
func (m *MetricsService) ObserveMutation(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	code := "OK"
	if err != nil {
		code = appErrors.FromError(err).Code
		atomic.AddUint64(&m.mutationFailureCount, 1)
	}
	m.mutationLatency.WithLabelValues(op).Observe(duration.Seconds())
	m.mutationTotal.WithLabelValues(op, code).Inc()
	atomic.AddUint64(&m.mutationCount, 1)
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.hitCount)
	stale := atomic.LoadUint64(&m.staleCount)
	misses := atomic.LoadUint64(&m.missCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var ratio float64
	if total := hits + stale + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		QueryHits:        hits,
		QueryStaleServed: stale,
		QueryMisses:      misses,
		QueryHitRatio:    ratio,
		QueryDiscarded:   atomic.LoadUint64(&m.discardedCount),
		Mutations:        atomic.LoadUint64(&m.mutationCount),
		MutationFailures: atomic.LoadUint64(&m.mutationFailureCount),
		RequestsTotal:    requests,
		AverageRequestMs: avgRequestMs,
		Goroutines:       runtime.NumGoroutine(),
		GeneratedAt:      time.Now().UTC(),
	}
}

var (
	_ query.Recorder    = (*MetricsService)(nil)
	_ mutation.Recorder = (*MetricsService)(nil)
)
