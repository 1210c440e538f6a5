package dispatch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	schedulercontext "github.com/armadaproject/elasticsched/internal/scheduler/context"
)

const (
	NAMESPACE = "elasticsched"
	SUBSYSTEM = "dispatch"
)

type Metrics struct {
	// How late a stage was launched relative to its timeline offset.
	launchDelay prometheus.Histogram
	// Measured completion time and cost of the last run per query and algorithm.
	jct  *prometheus.GaugeVec
	cost *prometheus.GaugeVec
	// Completed profiling rounds, one per sampled degree.
	profilingRounds prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		launchDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "launch_delay_seconds",
			Help:      "Delay between the scheduled and actual launch of a stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		jct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "jct_milliseconds",
			Help:      "Measured completion time of the last dispatched plan.",
		}, []string{"query", "algorithm"}),
		cost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "cost",
			Help:      "Cost reported by the executors for the last dispatched plan.",
		}, []string{"query", "algorithm"}),
		profilingRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "profiling_rounds_total",
			Help:      "Number of completed profiling rounds.",
		}),
	}
	registerer.MustRegister(m.launchDelay, m.jct, m.cost, m.profilingRounds)
	return m
}

func (m *Metrics) ReportLaunch(delay time.Duration) {
	m.launchDelay.Observe(delay.Seconds())
}

func (m *Metrics) ReportOutcome(run *schedulercontext.SchedulingRun, outcome *Outcome) {
	query, algorithm := strconv.Itoa(run.Graph.QueryID), string(run.Algorithm)
	m.jct.WithLabelValues(query, algorithm).Set(float64(outcome.JCT.Milliseconds()))
	m.cost.WithLabelValues(query, algorithm).Set(outcome.Cost)
}

func (m *Metrics) ReportProfilingRound() {
	m.profilingRounds.Inc()
}
