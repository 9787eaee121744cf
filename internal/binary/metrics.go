package binary

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts resolution, download and execution outcomes.
type Metrics struct {
	resolutions      *prometheus.CounterVec
	downloadAttempts *prometheus.CounterVec
	executions       *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them on reg. A nil reg
// leaves them unregistered, which still lets tests read them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sgctl",
			Name:      "resolutions_total",
			Help:      "Binary resolution attempts by strategy and result.",
		}, []string{"strategy", "result"}),
		downloadAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sgctl",
			Name:      "download_attempts_total",
			Help:      "HTTP download attempts by result.",
		}, []string{"result"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sgctl",
			Name:      "executions_total",
			Help:      "ast-grep executions by mode and outcome.",
		}, []string{"mode", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.resolutions, m.downloadAttempts, m.executions)
	}
	return m
}

func (m *Metrics) observeResolution(s Strategy, err error) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(s.String(), resultLabel(err)).Inc()
}

func (m *Metrics) observeDownloadAttempt(err error) {
	if m == nil {
		return
	}
	m.downloadAttempts.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) observeExecution(mode string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(ExecFailed)
		if ee, ok := err.(*ExecError); ok {
			outcome = string(ee.Kind)
		}
	}
	m.executions.WithLabelValues(mode, outcome).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
