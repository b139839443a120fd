package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oracle"

type relayMetrics struct {
	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter
	connections    prometheus.Gauge

	backendCallsTotal   *prometheus.CounterVec
	backendCallDuration *prometheus.HistogramVec
	permitsInUse        prometheus.Gauge
	permitWait          prometheus.Histogram

	answersTotal    *prometheus.CounterVec
	answerDuration  prometheus.Histogram
	reasoningSteps  prometheus.Histogram
	chunksSentTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *relayMetrics
)

func getMetrics() *relayMetrics {
	metricsOnce.Do(func() {
		m := &relayMetrics{
			activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Sessions currently bound to a live connection.",
			}),
			sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Sessions opened since start.",
			}),
			connections: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Open websocket connections.",
			}),
			backendCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_calls_total",
				Help:      "Backend invocations by backend and outcome (success, substituted, failed).",
			}, []string{"backend", "status"}),
			backendCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_call_duration_seconds",
				Help:      "Backend call duration in seconds, permit wait excluded.",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
			}, []string{"backend"}),
			permitsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_permits_in_use",
				Help:      "Concurrency permits held across all sessions.",
			}),
			permitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_permit_wait_seconds",
				Help:      "Time spent waiting for a concurrency permit.",
				Buckets:   prometheus.DefBuckets,
			}),
			answersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_total",
				Help:      "Answer streams by final state.",
			}, []string{"status"}),
			answerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "answer_duration_seconds",
				Help:      "Wall time from prompt to the end of its stream.",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
			}),
			reasoningSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reasoning_steps",
				Help:      "Snapshots produced per answer.",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			}),
			chunksSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_sent_total",
				Help:      "Frames written to clients by event type.",
			}, []string{"type"}),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsTotal,
			m.connections,
			m.backendCallsTotal,
			m.backendCallDuration,
			m.permitsInUse,
			m.permitWait,
			m.answersTotal,
			m.answerDuration,
			m.reasoningSteps,
			m.chunksSentTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionOpened() {
	getMetrics().sessionsTotal.Inc()
}

func ConnectionOpened() {
	getMetrics().connections.Inc()
}

func ConnectionClosed() {
	getMetrics().connections.Dec()
}

// RecordBackendCall records one finished backend invocation. status is one
// of success, substituted or failed.
func RecordBackendCall(backend, status string, duration time.Duration) {
	m := getMetrics()
	m.backendCallsTotal.WithLabelValues(backend, status).Inc()
	m.backendCallDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func RecordPermitAcquired(wait time.Duration) {
	m := getMetrics()
	m.permitsInUse.Inc()
	m.permitWait.Observe(wait.Seconds())
}

func RecordPermitReleased() {
	getMetrics().permitsInUse.Dec()
}

func RecordAnswer(status string, steps int, duration time.Duration) {
	m := getMetrics()
	m.answersTotal.WithLabelValues(status).Inc()
	m.answerDuration.Observe(duration.Seconds())
	m.reasoningSteps.Observe(float64(steps))
}

func RecordFrameSent(eventType string) {
	getMetrics().chunksSentTotal.WithLabelValues(eventType).Inc()
}
