package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records routing, dispatch, session, and cache metrics.
type Collector struct {
	// Request metrics
	requestsTotal    *prometheus.CounterVec
	routingDecisions *prometheus.CounterVec
	escalationsTotal prometheus.Counter

	// Dispatch metrics
	hopDuration  *prometheus.HistogramVec
	chainLength  prometheus.Histogram
	handBacks    prometheus.Counter
	retriesTotal *prometheus.CounterVec

	// Session metrics
	sessionOps     *prometheus.CounterVec
	activeSessions prometheus.Gauge

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in
// tests to avoid duplicate registration panics.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.requestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of routed requests",
		},
		[]string{"strategy", "status"},
	)

	c.routingDecisions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by strategy and intent",
		},
		[]string{"strategy", "intent"},
	)

	c.escalationsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Emergency escalations",
		},
	)

	c.hopDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hop_duration_seconds",
			Help:      "Duration of a single worker hop",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"worker", "status"},
	)

	c.chainLength = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_length",
			Help:      "Number of handovers per completed chain",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	c.handBacks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hand_backs_total",
			Help:      "Worker hand-back transitions",
		},
	)

	c.retriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries of transient store failures",
		},
		[]string{"operation"},
	)

	c.sessionOps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_operations_total",
			Help:      "Session operations by type and status",
		},
		[]string{"operation", "status"},
	)

	c.activeSessions = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions in a non-terminal phase",
		},
	)

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordRequest records one routed request outcome.
func (c *Collector) RecordRequest(strategy, status string) {
	c.requestsTotal.WithLabelValues(strategy, status).Inc()
}

// RecordDecision records a routing decision.
func (c *Collector) RecordDecision(strategy, intent string) {
	c.routingDecisions.WithLabelValues(strategy, intent).Inc()
}

// RecordEscalation records an emergency escalation.
func (c *Collector) RecordEscalation() {
	c.escalationsTotal.Inc()
}

// RecordHop records the timing and outcome of one worker hop.
func (c *Collector) RecordHop(worker, status string, duration time.Duration) {
	c.hopDuration.WithLabelValues(worker, status).Observe(duration.Seconds())
}

// RecordChainLength records the number of handovers in a finished chain.
func (c *Collector) RecordChainLength(length int) {
	c.chainLength.Observe(float64(length))
}

// RecordHandBack records a reversed-direction handover.
func (c *Collector) RecordHandBack() {
	c.handBacks.Inc()
}

// RecordRetry records a retry of a transient failure.
func (c *Collector) RecordRetry(operation string) {
	c.retriesTotal.WithLabelValues(operation).Inc()
}

// RecordSessionOp records a session operation outcome.
func (c *Collector) RecordSessionOp(operation, status string) {
	c.sessionOps.WithLabelValues(operation, status).Inc()
}

// SetActiveSessions sets the active session gauge.
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}
