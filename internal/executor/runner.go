package executor

import (
	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/model"
	"github.com/armadaproject/elasticsched/pkg/controlapi"
)

// TaskResult is the outcome of one finished task.
type TaskResult struct {
	Stage *dag.StageNode
	// What the executor was asked to run for the stage.
	Tasks controlapi.TasksToExecute
	// Global id of the task within its stage.
	TaskID  int
	Profile model.Profile
}

// Runner launches the tasks of a stage on this executor.
type Runner interface {
	// Run starts the local tasks described by tasks and returns without waiting for them.
	Run(ctx *schedcontext.Context, s *dag.StageNode, tasks controlapi.TasksToExecute) error
	// Wait blocks until every task started so far has finished and returns the results that no earlier
	// call returned.
	Wait(ctx *schedcontext.Context) ([]TaskResult, error)
}
