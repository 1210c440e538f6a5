package placement

import (
	"github.com/armadaproject/elasticsched/internal/scheduler/allocation"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
)

// Uniform spreads every stage over all executors in proportion to their slots, with every edge going
// through remote storage.
func Uniform(g *dag.StageGraph, degrees allocation.Degrees, slots []int) *Result {
	return proportional(g, degrees, slots, func(int, int) bool { return false })
}

// Greedy places stages like Uniform but keeps the locally produced part of every gather edge in shared
// memory.
func Greedy(g *dag.StageGraph, degrees allocation.Degrees, slots []int) *Result {
	return proportional(g, degrees, slots, func(from, _ int) bool {
		return g.Stage(from).ToOp == dag.Gather
	})
}

// proportional gives executor e floor(degree * slots[e] / total) tasks of each parallel stage and hands
// the remainder out one task at a time from executor 0. Single stages run on executor 0.
func proportional(g *dag.StageGraph, degrees allocation.Degrees, slots []int, local localEdgeFunc) *Result {
	n := len(slots)
	capacity := sum(slots)
	distri := newDistribution(g.NumStages(), n)
	placed := make([]int, n)
	for _, id := range g.StageIDs() {
		if g.Stage(id).IsSingle {
			distri[id][0] = 1
			placed[0]++
			continue
		}
		assigned := 0
		for e := 0; e < n; e++ {
			distri[id][e] = degrees[id] * slots[e] / capacity
			assigned += distri[id][e]
		}
		for j := 0; j < degrees[id]-assigned; j++ {
			distri[id][j%n]++
		}
		for e := 0; e < n; e++ {
			placed[e] += distri[id][e]
		}
	}
	table := newTable(g, degrees, distri, n)
	return &Result{
		Table: table,
		Plan:  newExecutionPlan(g, table, local),
		// Stages of a baseline plan share slots over time, so nothing counts as oversubscribed.
		Placed:         placed,
		Oversubscribed: make([]int, n),
	}
}
