package metrics

import (
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// ComponentMetrics tracks trial, error, branch and recovery activity of a component
type ComponentMetrics struct {
	registry *prometheus.Registry

	trialsCompleted  *prometheus.CounterVec
	trialFailures    *prometheus.CounterVec
	errorsRegistered *prometheus.CounterVec
	branchDecisions  *prometheus.CounterVec
	recoveries       *prometheus.CounterVec
	runCount         *prometheus.GaugeVec
	trialDuration    *prometheus.HistogramVec
}

// NewComponentMetrics creates component metrics registered on their own registry
func NewComponentMetrics() *ComponentMetrics {
	m := &ComponentMetrics{
		registry: prometheus.NewRegistry(),
		trialsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rrfloop_trials_completed_total",
				Help: "Trials completed and recorded to the raw data file",
			},
			[]string{"task"},
		),
		trialFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rrfloop_trial_failures_total",
				Help: "Trials that failed without incrementing the run counter",
			},
			[]string{"task"},
		),
		errorsRegistered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rrfloop_errors_total",
				Help: "Entries appended to the component error log by kind",
			},
			[]string{"task", "kind"},
		),
		branchDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rrfloop_branch_decisions_total",
				Help: "Completed trials by the branch index they lead to",
			},
			[]string{"task", "index"},
		),
		recoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rrfloop_recoveries_total",
				Help: "Crash recovery attempts by result",
			},
			[]string{"task", "result"},
		),
		runCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rrfloop_run_count",
				Help: "Current value of the run counter",
			},
			[]string{"task"},
		),
		trialDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rrfloop_trial_duration_seconds",
				Help:    "Wall time of each completed trial",
				Buckets: prometheus.ExponentialBuckets(0.001, 10, 7),
			},
			[]string{"task"},
		),
	}

	m.registry.MustRegister(
		m.trialsCompleted,
		m.trialFailures,
		m.errorsRegistered,
		m.branchDecisions,
		m.recoveries,
		m.runCount,
		m.trialDuration,
	)
	return m
}

// Registry exposes the underlying registry for HTTP handlers
func (m *ComponentMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrialCompleted records a completed trial and the new run count
func (m *ComponentMetrics) TrialCompleted(task string, runCount int, seconds float64) {
	m.trialsCompleted.WithLabelValues(task).Inc()
	m.runCount.WithLabelValues(task).Set(float64(runCount))
	m.trialDuration.WithLabelValues(task).Observe(seconds)
}

// TrialFailed records a failed trial
func (m *ComponentMetrics) TrialFailed(task string) {
	m.trialFailures.WithLabelValues(task).Inc()
}

// ErrorRegistered records an error log entry
func (m *ComponentMetrics) ErrorRegistered(task, kind string) {
	m.errorsRegistered.WithLabelValues(task, kind).Inc()
}

// BranchDecided records the branch a completed trial leads to
func (m *ComponentMetrics) BranchDecided(task string, index int) {
	m.branchDecisions.WithLabelValues(task, strconv.Itoa(index)).Inc()
}

// RecoveryAttempted records a recovery and, on success, the restored run count
func (m *ComponentMetrics) RecoveryAttempted(task string, ok bool, runCount int) {
	result := "failed"
	if ok {
		result = "succeeded"
		m.runCount.WithLabelValues(task).Set(float64(runCount))
	}
	m.recoveries.WithLabelValues(task, result).Inc()
}

// RunCountReset sets the run count gauge after setup
func (m *ComponentMetrics) RunCountReset(task string) {
	m.runCount.WithLabelValues(task).Set(0)
}

// WriteText writes every metric in the Prometheus text exposition format
func (m *ComponentMetrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
