package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

// PipelineMetrics observes analysis runs. It satisfies the dispatch pool observer
// and the parsing client poll observer.
type PipelineMetrics struct {
	service string

	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	runsInFlight      prometheus.Gauge
	parsingPolls      *prometheus.HistogramVec
	writeBackFailures *prometheus.CounterVec
	queueLag          *prometheus.HistogramVec
}

func NewPipelineMetrics(registry prometheus.Registerer, service string) *PipelineMetrics {
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total pipeline runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180, 300},
		},
		[]string{"service", "outcome"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Number of pipeline runs currently executing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	parsingPolls := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "parsing_poll_attempts",
			Help:      "Status polls spent per parsing job by terminal status.",
			Buckets:   []float64{1, 2, 3, 5, 10, 15, 20, 30, 45, 60},
		},
		[]string{"service", "status"},
	)
	writeBackFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "writeback_failures_total",
			Help:      "Record store write-backs that could not be delivered.",
		},
		[]string{"service"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between scheduling a run and a worker picking it up.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service"},
	)

	registry.MustRegister(runsTotal, runDuration, runsInFlight, parsingPolls, writeBackFailures, queueLag)

	return &PipelineMetrics{
		service:           service,
		runsTotal:         runsTotal,
		runDuration:       runDuration,
		runsInFlight:      runsInFlight,
		parsingPolls:      parsingPolls,
		writeBackFailures: writeBackFailures,
		queueLag:          queueLag,
	}
}

func (m *PipelineMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsInFlight.Inc()
}

func (m *PipelineMetrics) RunFinished(outcome domain.RunOutcome, duration time.Duration, writeBackFailed bool) {
	if m == nil {
		return
	}
	m.runsInFlight.Dec()

	label := string(outcome)
	if label == "" {
		label = string(domain.OutcomeFailed)
	}
	m.runsTotal.WithLabelValues(m.service, label).Inc()
	m.runDuration.WithLabelValues(m.service, label).Observe(duration.Seconds())
	if writeBackFailed {
		m.writeBackFailures.WithLabelValues(m.service).Inc()
	}
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if m == nil || lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *PipelineMetrics) ObserveParsingPolls(status domain.ParsingStatus, attempts int) {
	if m == nil || attempts < 0 {
		return
	}
	m.parsingPolls.WithLabelValues(m.service, string(status)).Observe(float64(attempts))
}
