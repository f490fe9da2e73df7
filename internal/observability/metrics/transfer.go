package metrics

import "github.com/prometheus/client_golang/prometheus"

// TransferMetrics counts execution hand-offs and their reported outcomes.
type TransferMetrics struct {
	submissions *prometheus.CounterVec
	statuses    *prometheus.CounterVec
}

func NewTransferMetrics(reg prometheus.Registerer) *TransferMetrics {
	m := &TransferMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remit",
			Subsystem: "transfer",
			Name:      "handoff_total",
			Help:      "Transfer hand-off submissions by status",
		}, []string{"status"}),
		statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remit",
			Subsystem: "transfer",
			Name:      "status_updates_total",
			Help:      "Execution status notifications by outcome",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissions, m.statuses)
	return m
}

func (m *TransferMetrics) ObserveSubmission(status string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(status).Inc()
}

func (m *TransferMetrics) ObserveStatus(status string) {
	if m == nil {
		return
	}
	m.statuses.WithLabelValues(status).Inc()
}
