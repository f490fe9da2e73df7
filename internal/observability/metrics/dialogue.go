package metrics

import "github.com/prometheus/client_golang/prometheus"

// DialogueMetrics tracks state transitions and optimistic-concurrency behaviour.
type DialogueMetrics struct {
	transitions  *prometheus.CounterVec
	casConflicts prometheus.Counter
	replays      prometheus.Counter
	exhausted    prometheus.Counter
}

func NewDialogueMetrics(reg prometheus.Registerer) *DialogueMetrics {
	m := &DialogueMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remit",
			Subsystem: "dialogue",
			Name:      "transitions_total",
			Help:      "Committed state transitions",
		}, []string{"from", "to"}),
		casConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remit",
			Subsystem: "dialogue",
			Name:      "cas_conflicts_total",
			Help:      "Compare-and-swap attempts that lost a version race",
		}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remit",
			Subsystem: "dialogue",
			Name:      "replays_total",
			Help:      "Redelivered messages answered from the stored reply",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remit",
			Subsystem: "dialogue",
			Name:      "retries_exhausted_total",
			Help:      "Messages that gave up after the retry budget",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.casConflicts, m.replays, m.exhausted)
	return m
}

func (m *DialogueMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *DialogueMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.casConflicts.Inc()
}

func (m *DialogueMetrics) ObserveReplay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

func (m *DialogueMetrics) ObserveExhausted() {
	if m == nil {
		return
	}
	m.exhausted.Inc()
}
