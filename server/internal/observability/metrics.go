package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes.
const (
	OutcomeReply    = "reply"
	OutcomeBlocked  = "blocked"
	OutcomeImage    = "image"
	OutcomeFallback = "exhausted"
	OutcomeError    = "error"
)

// Step and augmentation results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultEmpty   = "empty"
)

// Metrics holds the Prometheus collectors of the chat pipeline.
type Metrics struct {
	turns         *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	fallbackSteps *prometheus.CounterVec
	stepErrors    *prometheus.CounterVec
	safetyBlocks  prometheus.Counter
	safetyErrors  prometheus.Counter
	augmentations *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg uses a private registry,
// which keeps tests independent of each other.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatturn_turns_total",
			Help: "Chat turns handled, by outcome.",
		}, []string{"outcome"}),
		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatturn_turn_duration_seconds",
			Help:    "Chat turn latency, by outcome.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		fallbackSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatturn_fallback_steps_total",
			Help: "Fallback chain step attempts, by step and result.",
		}, []string{"step", "result"}),
		stepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatturn_fallback_step_errors_total",
			Help: "Failed fallback steps, by step and error class.",
		}, []string{"step", "class"}),
		safetyBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatturn_safety_blocks_total",
			Help: "User messages blocked by content safety.",
		}),
		safetyErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatturn_safety_check_errors_total",
			Help: "Content safety checks that failed and were let through.",
		}),
		augmentations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatturn_augmentations_total",
			Help: "Retrieval augmentations, by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// RecordTurn records one finished turn.
func (m *Metrics) RecordTurn(outcome string, duration time.Duration) {
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStep records one fallback step attempt.
func (m *Metrics) RecordStep(step string, ok bool) {
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	m.fallbackSteps.WithLabelValues(step, result).Inc()
}

// RecordStepError records the error class of a failed fallback step.
func (m *Metrics) RecordStepError(step, class string) {
	m.stepErrors.WithLabelValues(step, class).Inc()
}

func (m *Metrics) RecordSafetyBlock() {
	m.safetyBlocks.Inc()
}

func (m *Metrics) RecordSafetyError() {
	m.safetyErrors.Inc()
}

// RecordAugmentation records one retrieval attempt; kind is "hybrid" or "web".
func (m *Metrics) RecordAugmentation(kind, result string) {
	m.augmentations.WithLabelValues(kind, result).Inc()
}

// TurnsTotal exposes the turn counter for tests.
func (m *Metrics) TurnsTotal() *prometheus.CounterVec {
	return m.turns
}

// FallbackSteps exposes the step counter for tests.
func (m *Metrics) FallbackSteps() *prometheus.CounterVec {
	return m.fallbackSteps
}

// StepErrors exposes the step error counter for tests.
func (m *Metrics) StepErrors() *prometheus.CounterVec {
	return m.stepErrors
}

// SafetyBlocks exposes the block counter for tests.
func (m *Metrics) SafetyBlocks() prometheus.Counter {
	return m.safetyBlocks
}
