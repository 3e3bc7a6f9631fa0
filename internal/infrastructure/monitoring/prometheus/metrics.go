package prometheus

import (
	"strconv"
	"time"
)

// ShapeMetrics is the metric set of the overlap engine and its transports.
type ShapeMetrics struct {
	// Engine
	AlignmentsTotal      CounterVec
	AlignmentDuration    HistogramVec
	OptimizerEvaluations HistogramVec
	ProductCount         HistogramVec
	AlignmentScore       HistogramVec

	// Screening
	ScreeningCandidatesTotal CounterVec
	ScreeningDuration        HistogramVec
	ScreeningInFlight        GaugeVec

	// Cache
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec

	// Transport
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	MessagesTotal       CounterVec
}

var (
	DefaultHTTPDurationBuckets      = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultAlignmentDurationBuckets = []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5}
	DefaultScreeningDurationBuckets = []float64{.1, .5, 1, 5, 10, 30, 60, 300}
	DefaultEvaluationBuckets        = []float64{10, 25, 50, 100, 250, 500, 1000, 5000}
	DefaultProductCountBuckets      = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000}
	DefaultScoreBuckets             = []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1}
)

// NewShapeMetrics registers every metric on collector.
func NewShapeMetrics(collector MetricsCollector) *ShapeMetrics {
	m := &ShapeMetrics{}

	m.AlignmentsTotal = collector.RegisterCounter("alignments_total", "Shape alignments performed", "strategy", "status")
	m.AlignmentDuration = collector.RegisterHistogram("alignment_duration_seconds", "Wall time of one alignment", DefaultAlignmentDurationBuckets, "strategy")
	m.OptimizerEvaluations = collector.RegisterHistogram("optimizer_evaluations", "Objective evaluations per alignment", DefaultEvaluationBuckets, "strategy")
	m.ProductCount = collector.RegisterHistogram("gaussian_products", "Gaussian products generated per shape", DefaultProductCountBuckets)
	m.AlignmentScore = collector.RegisterHistogram("alignment_score", "Best score per alignment", DefaultScoreBuckets, "metric")

	m.ScreeningCandidatesTotal = collector.RegisterCounter("screening_candidates_total", "Candidates screened", "status")
	m.ScreeningDuration = collector.RegisterHistogram("screening_duration_seconds", "Wall time of one screening batch", DefaultScreeningDurationBuckets)
	m.ScreeningInFlight = collector.RegisterGauge("screening_in_flight", "Screening batches currently running")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Result cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Result cache misses", "cache")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request latency", DefaultHTTPDurationBuckets, "method", "path")
	m.MessagesTotal = collector.RegisterCounter("messages_total", "Kafka messages handled", "topic", "status")

	return m
}

// ObserveAlignment records one finished alignment.
func (m *ShapeMetrics) ObserveAlignment(strategy, status string, d time.Duration, evaluations int) {
	m.AlignmentsTotal.WithLabelValues(strategy, status).Inc()
	m.AlignmentDuration.WithLabelValues(strategy).Observe(d.Seconds())
	if evaluations > 0 {
		m.OptimizerEvaluations.WithLabelValues(strategy).Observe(float64(evaluations))
	}
}

// ObserveScore records the best score under the named metric.
func (m *ShapeMetrics) ObserveScore(metric string, score float64) {
	m.AlignmentScore.WithLabelValues(metric).Observe(score)
}

func (m *ShapeMetrics) ObserveProducts(count int) {
	m.ProductCount.WithLabelValues().Observe(float64(count))
}

// ObserveScreening records a finished batch.
func (m *ShapeMetrics) ObserveScreening(succeeded, failed int, d time.Duration) {
	m.ScreeningCandidatesTotal.WithLabelValues("ok").Add(float64(succeeded))
	if failed > 0 {
		m.ScreeningCandidatesTotal.WithLabelValues("error").Add(float64(failed))
	}
	m.ScreeningDuration.WithLabelValues().Observe(d.Seconds())
}

// TrackScreening increments the in-flight gauge and returns its release.
func (m *ShapeMetrics) TrackScreening() func() {
	g := m.ScreeningInFlight.WithLabelValues()
	g.Inc()
	return g.Dec
}

func (m *ShapeMetrics) ObserveCache(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

func (m *ShapeMetrics) ObserveHTTPRequest(method, path string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (m *ShapeMetrics) ObserveMessage(topic, status string) {
	m.MessagesTotal.WithLabelValues(topic, status).Inc()
}
