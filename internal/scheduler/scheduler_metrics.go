package scheduler

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	schedulercontext "github.com/armadaproject/elasticsched/internal/scheduler/context"
)

const (
	NAMESPACE = "elasticsched"
	SUBSYSTEM = "scheduler"
)

type SchedulerMetrics struct {
	// Time taken to produce a plan.
	scheduleDuration prometheus.Histogram
	// Placements that failed and split a group.
	placementRetries prometheus.Counter
	// Predicted completion time and cost of the last plan per query and algorithm.
	predictedJCT  *prometheus.GaugeVec
	predictedCost *prometheus.GaugeVec
	// Budget slots left unused by the last plan, negative when overcommitted.
	unusedSlots *prometheus.GaugeVec
}

func NewSchedulerMetrics(registerer prometheus.Registerer) *SchedulerMetrics {
	scheduleDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "schedule_duration_seconds",
			Help:      "Time taken to plan a query.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
	placementRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "placement_retries_total",
			Help:      "Number of placements that split a group and were retried.",
		},
	)
	labels := []string{"query", "algorithm"}
	predictedJCT := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "predicted_jct_milliseconds",
			Help:      "Predicted completion time of the last plan.",
		},
		labels,
	)
	predictedCost := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "predicted_cost",
			Help:      "Predicted memory-time product of the last plan.",
		},
		labels,
	)
	unusedSlots := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "unused_slots",
			Help:      "Budget slots left unallocated by the last plan.",
		},
		labels,
	)
	registerer.MustRegister(scheduleDuration, placementRetries, predictedJCT, predictedCost, unusedSlots)
	return &SchedulerMetrics{
		scheduleDuration: scheduleDuration,
		placementRetries: placementRetries,
		predictedJCT:     predictedJCT,
		predictedCost:    predictedCost,
		unusedSlots:      unusedSlots,
	}
}

func (metrics *SchedulerMetrics) ReportPlacementRetry() {
	metrics.placementRetries.Inc()
}

func (metrics *SchedulerMetrics) ReportRun(run *schedulercontext.SchedulingRun) {
	query, algorithm := strconv.Itoa(run.Graph.QueryID), string(run.Algorithm)
	metrics.scheduleDuration.Observe(run.Duration().Seconds())
	metrics.predictedJCT.WithLabelValues(query, algorithm).Set(run.PredictedJCTMs)
	metrics.predictedCost.WithLabelValues(query, algorithm).Set(run.PredictedCost)
	metrics.unusedSlots.WithLabelValues(query, algorithm).Set(float64(run.Refinement.Unused()))
}
