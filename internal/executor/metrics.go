package executor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	NAMESPACE = "elasticsched"
	SUBSYSTEM = "executor"
)

type Metrics struct {
	tasksStarted     prometheus.Counter
	profilesUploaded prometheus.Counter
	// Cost reported for the last session.
	cost prometheus.Gauge
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "tasks_started_total",
			Help:      "Number of tasks started on this executor.",
		}),
		profilesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "profiles_uploaded_total",
			Help:      "Number of task profiles uploaded to the profile store.",
		}),
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "cost",
			Help:      "Cost reported to the scheduler for the last session.",
		}),
	}
	registerer.MustRegister(m.tasksStarted, m.profilesUploaded, m.cost)
	return m
}

func (m *Metrics) ReportTasksStarted(n int) {
	m.tasksStarted.Add(float64(n))
}

func (m *Metrics) ReportProfilesUploaded(n int) {
	m.profilesUploaded.Add(float64(n))
}

func (m *Metrics) ReportCost(cost float64) {
	m.cost.Set(cost)
}
