// Package estimate predicts the completion time and cost of a plan from the performance models of its
// stages. Given the execution modes of OptimalWeights, the same functions give lower bounds.
package estimate

import (
	"math"

	"github.com/armadaproject/elasticsched/internal/scheduler/allocation"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

// Cost returns the predicted memory-time product of g: for every stage, degree times the per-task memory
// footprint times the predicted task time in seconds. Tasks of non-leaf stages also pay
// launchOverheadMs.
func Cost(g *dag.StageGraph, degrees allocation.Degrees, modes []model.ExecMode, launchOverheadMs float64) float64 {
	total := 0.0
	for _, id := range g.StageIDs() {
		s := g.Stage(id)
		d := degrees.Effective(g, id)
		t := s.Model.PredictTime(modes[id], d) + math.Abs(s.Model.PredictTime(model.Pre, d))
		if !s.IsLeaf {
			t += launchOverheadMs
		}
		total += float64(degrees[id]) * s.Memory.Footprint(degrees[id]) * t / 1000
	}
	return total
}

// LongestPath returns the predicted time, in milliseconds, of the slowest leaf to sink path when no
// stage waits on anything but its upstream. Only leaves pay for preparation, as every other stage
// prepares while its upstream runs.
func LongestPath(g *dag.StageGraph, degrees allocation.Degrees, modes []model.ExecMode) float64 {
	longest := 0.0
	for _, leaf := range g.LeafIDs {
		t := math.Abs(g.Stage(leaf).Model.PredictTime(model.Pre, degrees[leaf]))
		for _, id := range g.PathToSink(leaf) {
			t += math.Abs(g.Stage(id).Model.PredictTime(modes[id], degrees.Effective(g, id)))
		}
		longest = max(longest, t)
	}
	return longest
}
