package context

import (
	"time"

	"github.com/google/uuid"

	"github.com/armadaproject/elasticsched/internal/scheduler/allocation"
	"github.com/armadaproject/elasticsched/internal/scheduler/configuration"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/grouping"
	"github.com/armadaproject/elasticsched/internal/scheduler/model"
	"github.com/armadaproject/elasticsched/internal/scheduler/placement"
	"github.com/armadaproject/elasticsched/internal/scheduler/timeline"
)

// SchedulingRun contains everything decided while scheduling one query, from grouping to the launch
// timeline. A new one is created for every invocation; nothing is shared between runs.
type SchedulingRun struct {
	// Unique id of this run, attached to every log line it emits.
	ID string
	// Time at which scheduling started.
	Started time.Time
	// Time at which scheduling finished.
	Finished time.Time
	Graph    *dag.StageGraph
	Mode     configuration.SchedulingMode
	// Algorithm the plan was produced by.
	Algorithm configuration.Algorithm
	// Slots of each executor, in executor id order.
	Slots []int
	// Slots shared by the parallel stages.
	TotalSlots int
	Groups     []*grouping.StageGroup
	// Execution mode of every stage and the weights the allocation was derived from.
	Weights    *allocation.Weights
	Degrees    allocation.Degrees
	Refinement allocation.Refinement
	// Number of times placement was attempted, including the successful one.
	PlacementAttempts int
	Placement         *placement.Result
	Timeline          timeline.Timeline
	// Predicted memory-time product of the plan.
	PredictedCost float64
	// Predicted duration, in milliseconds, of the slowest leaf to sink path.
	PredictedJCTMs float64
}

func NewSchedulingRun(
	g *dag.StageGraph,
	mode configuration.SchedulingMode,
	algorithm configuration.Algorithm,
	slots []int,
) *SchedulingRun {
	return &SchedulingRun{
		ID:         uuid.NewString(),
		Started:    time.Now(),
		Graph:      g,
		Mode:       mode,
		Algorithm:  algorithm,
		Slots:      slots,
		TotalSlots: allocation.TotalSlots(g, slots),
	}
}

// Modes returns the execution mode of every stage, indexed by stage id.
func (run *SchedulingRun) Modes() []model.ExecMode {
	if run.Weights == nil {
		return nil
	}
	return run.Weights.Modes
}

func (run *SchedulingRun) Finish() {
	run.Finished = time.Now()
}

func (run *SchedulingRun) Duration() time.Duration {
	return run.Finished.Sub(run.Started)
}

// NumExecutors returns the number of executors the plan was made for.
func (run *SchedulingRun) NumExecutors() int {
	return len(run.Slots)
}
