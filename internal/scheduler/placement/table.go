package placement

import (
	"github.com/armadaproject/elasticsched/internal/scheduler/allocation"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/pkg/controlapi"
)

// distribution[stage][executor] is the number of tasks of stage run by executor.
type distribution [][]int

func newDistribution(numStages, numExecutors int) distribution {
	d := make(distribution, numStages+1)
	for i := range d {
		d[i] = make([]int, numExecutors)
	}
	return d
}

// Table records, for every stage and executor, which tasks and shared memory channels the executor owns.
type Table struct {
	numExecutors int
	assignments  [][]controlapi.StageAssignment
}

// newTable lays out the tasks of every stage contiguously in executor order. Channel ids are allocated
// per executor in ascending stage order, starting at 1.
func newTable(g *dag.StageGraph, degrees allocation.Degrees, distri distribution, numExecutors int) *Table {
	t := &Table{
		numExecutors: numExecutors,
		assignments:  make([][]controlapi.StageAssignment, len(g.Stages)),
	}
	nextChannel := make([]int32, numExecutors)
	for e := range nextChannel {
		nextChannel[e] = 1
	}
	for _, id := range g.StageIDs() {
		t.assignments[id] = make([]controlapi.StageAssignment, numExecutors)
		taskID := int32(0)
		for e := 0; e < numExecutors; e++ {
			local := int32(distri[id][e])
			t.assignments[id][e] = controlapi.StageAssignment{
				StageID:        int32(id),
				NumTasks:       int32(degrees[id]),
				TaskIDStart:    taskID,
				ChannelIDStart: nextChannel[e],
				NumLocalTasks:  local,
			}
			taskID += local
			nextChannel[e] += local
		}
	}
	return t
}

func (t *Table) NumExecutors() int {
	return t.numExecutors
}

func (t *Table) Assignment(stageID, executor int) controlapi.StageAssignment {
	return t.assignments[stageID][executor]
}

// LocalTasks returns the number of tasks of stageID on every executor.
func (t *Table) LocalTasks(stageID int) []int {
	local := make([]int, t.numExecutors)
	for e, a := range t.assignments[stageID] {
		local[e] = int(a.NumLocalTasks)
	}
	return local
}

// ExecutionPlan holds the message each executor receives for each stage.
type ExecutionPlan struct {
	tasks [][]controlapi.TasksToExecute
}

func (p *ExecutionPlan) NumExecutors() int {
	return len(p.tasks)
}

// Tasks returns what executor runs for stageID.
func (p *ExecutionPlan) Tasks(executor, stageID int) controlapi.TasksToExecute {
	return p.tasks[executor][stageID]
}

// localEdgeFunc reports whether data from stage from reaches stage to through shared memory.
type localEdgeFunc func(from, to int) bool

func newExecutionPlan(g *dag.StageGraph, t *Table, local localEdgeFunc) *ExecutionPlan {
	p := &ExecutionPlan{tasks: make([][]controlapi.TasksToExecute, t.numExecutors)}
	for e := 0; e < t.numExecutors; e++ {
		p.tasks[e] = make([]controlapi.TasksToExecute, len(g.Stages))
		for _, id := range g.StageIDs() {
			s := g.Stage(id)
			tasks := controlapi.NewTasksToExecute()
			tasks.Current = t.Assignment(id, e)
			if s.IsSink() {
				tasks.To = controlapi.StageAssignment{StageID: controlapi.NoStage, NumTasks: 1}
			} else {
				tasks.To = t.Assignment(s.ToID, e)
				if !local(id, s.ToID) {
					tasks.To.NumLocalTasks = 0
				}
			}
			if s.IsLeaf {
				tasks.From[0] = controlapi.StageAssignment{StageID: controlapi.DatasetStage, NumTasks: int32(s.InputChunks)}
			} else {
				for k, from := range s.FromIDs {
					tasks.From[k] = t.Assignment(from, e)
					if !local(from, id) {
						tasks.From[k].NumLocalTasks = 0
					}
				}
			}
			p.tasks[e][id] = tasks
		}
	}
	return p
}

// Result is the outcome of a successful placement.
type Result struct {
	Table *Table
	Plan  *ExecutionPlan
	// Slots used on each executor, within capacity.
	Placed []int
	// Tasks placed on each executor beyond its capacity.
	Oversubscribed []int
}
