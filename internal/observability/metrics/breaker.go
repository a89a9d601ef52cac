package metrics

import "github.com/prometheus/client_golang/prometheus"

// BreakerMetrics exports collaborator circuit breaker state.
type BreakerMetrics struct {
	service     string
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

func NewBreakerMetrics(registry prometheus.Registerer, service string) *BreakerMetrics {
	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions per operation.",
		},
		[]string{"service", "operation", "to"},
	)
	registry.MustRegister(state, transitions)

	return &BreakerMetrics{service: service, state: state, transitions: transitions}
}

func (m *BreakerMetrics) BreakerStateChanged(operation string, _ string, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(m.service, operation, to).Inc()

	var value float64
	switch to {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.state.WithLabelValues(m.service, operation).Set(value)
}
