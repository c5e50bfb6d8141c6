package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Remote stages timed by TurnMetrics
const (
	StageTranscription = "transcription"
	StageDialogue      = "dialogue"
	StageSynthesis     = "synthesis"
)

var (
	// Turn metrics
	activeTurns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calorie_tracker_active_turns",
		Help: "Number of turns currently being processed",
	})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calorie_tracker_turns_total",
		Help: "Total number of turns processed, by outcome",
	}, []string{"outcome"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "calorie_tracker_turn_duration_seconds",
		Help:    "End-to-end turn duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 90},
	})

	resetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calorie_tracker_resets_total",
		Help: "Total number of conversation resets",
	})

	abandonedTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calorie_tracker_abandoned_turns_total",
		Help: "Turns whose result was discarded after a reset",
	})

	// Remote stage metrics
	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calorie_tracker_stage_requests_total",
		Help: "Total number of remote stage requests",
	}, []string{"stage", "status"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calorie_tracker_stage_latency_seconds",
		Help:    "Remote stage latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"stage"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calorie_tracker_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "calorie_tracker_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calorie_tracker_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calorie_tracker_audio_seconds_total",
		Help: "Total seconds of audio recorded and synthesized",
	}, []string{"direction"}) // direction: "recorded" or "synthesized"
)

// TurnMetrics tracks metrics for a single turn
type TurnMetrics struct {
	turnID     string
	startTime  time.Time
	stageStart map[string]time.Time
	mu         sync.Mutex
}

// NewTurnMetrics creates a new metrics tracker for a turn
func NewTurnMetrics(turnID string) *TurnMetrics {
	return &TurnMetrics{
		turnID:     turnID,
		startTime:  time.Now(),
		stageStart: make(map[string]time.Time, 3),
	}
}

// RecordTurnStart records the start of a turn
func (m *TurnMetrics) RecordTurnStart() {
	activeTurns.Inc()
}

// RecordTurnEnd records the end of a turn with its outcome
func (m *TurnMetrics) RecordTurnEnd(outcome string) {
	activeTurns.Dec()
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordStageStart records the start of a remote stage
func (m *TurnMetrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStart[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd records the end of a remote stage
func (m *TurnMetrics) RecordStageEnd(stage string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if start, ok := m.stageStart[stage]; ok {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		delete(m.stageStart, stage)
	}

	status := "success"
	if !success {
		status = "error"
	}
	stageRequests.WithLabelValues(stage, status).Inc()
}

// RecordError records an error
func (m *TurnMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioSeconds records seconds of audio in the given direction
func (m *TurnMetrics) RecordAudioSeconds(direction string, seconds float64) {
	if seconds > 0 {
		audioSeconds.WithLabelValues(direction).Add(seconds)
	}
}

// RecordReset counts a conversation reset
func RecordReset() {
	resetsTotal.Inc()
}

// RecordAbandonedTurn counts a turn discarded after a reset
func RecordAbandonedTurn() {
	abandonedTurns.Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
