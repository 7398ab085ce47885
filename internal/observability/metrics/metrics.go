package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/darkking4096/odonto/internal/stage"
)

// ConversationMetrics exposes counters/histograms for the turn pipeline.
// It implements stage.Observer.
type ConversationMetrics struct {
	turnsTotal       *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	fallbacksTotal   prometheus.Counter
	turnLatency      *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odonto",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Turns handled, by the stage the turn resolved to",
		}, []string{"stage"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odonto",
			Subsystem: "conversation",
			Name:      "stage_transitions_total",
			Help:      "Stage transitions recorded, self-loops excluded",
		}, []string{"from", "to"}),
		fallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "odonto",
			Subsystem: "conversation",
			Name:      "reply_fallbacks_total",
			Help:      "Replies served from the fixed fallback sentences",
		}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "odonto",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn handling latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.transitionsTotal, m.fallbacksTotal, m.turnLatency)
	return m
}

var _ stage.Observer = (*ConversationMetrics)(nil)

func (m *ConversationMetrics) TurnHandled(st stage.Stage, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(string(st)).Inc()
	m.turnLatency.WithLabelValues(string(st)).Observe(seconds)
}

func (m *ConversationMetrics) TransitionRecorded(from, to stage.Stage) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (m *ConversationMetrics) FallbackUsed() {
	if m == nil {
		return
	}
	m.fallbacksTotal.Inc()
}
