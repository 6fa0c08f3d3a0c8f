package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asr_gateway_active_sessions",
		Help: "Number of active streaming sessions",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asr_gateway_sessions_total",
		Help: "Total number of sessions started",
	}, []string{"engine"})

	sessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asr_gateway_sessions_expired_total",
		Help: "Total number of sessions evicted by the housekeeper",
	})

	// Audio ingress metrics
	chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asr_gateway_chunks_total",
		Help: "Total number of audio chunks processed",
	}, []string{"engine"})

	audioBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asr_gateway_audio_bytes_total",
		Help: "Total audio bytes accepted from clients",
	}, []string{"engine"})

	// Recognition metrics
	recognitionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asr_gateway_recognition_latency_seconds",
		Help:    "Latency of blocking recognition work per chunk",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0, 60.0},
	}, []string{"engine"})

	updatesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asr_gateway_updates_dropped_total",
		Help: "Updates dropped on queue overflow",
	}, []string{"kind"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asr_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "asr_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// RecordSessionStart increments session counters
func RecordSessionStart(engine string) {
	activeSessions.Inc()
	sessionsTotal.WithLabelValues(engine).Inc()
}

// RecordSessionEnd decrements the active session gauge
func RecordSessionEnd(expired bool) {
	activeSessions.Dec()
	if expired {
		sessionsExpired.Inc()
	}
}

// RecordChunk records one processed audio chunk
func RecordChunk(engine string, bytes int) {
	chunksTotal.WithLabelValues(engine).Inc()
	audioBytesTotal.WithLabelValues(engine).Add(float64(bytes))
}

// ObserveRecognitionLatency records the duration of blocking recognizer work
func ObserveRecognitionLatency(engine string, d time.Duration) {
	recognitionLatency.WithLabelValues(engine).Observe(d.Seconds())
}

// RecordDroppedUpdate records an update lost to queue overflow
func RecordDroppedUpdate(kind string) {
	updatesDropped.WithLabelValues(kind).Inc()
}

// RecordError increments the error counter
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates the circuit breaker state gauge
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}
