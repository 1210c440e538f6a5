package profiling

import (
	"fmt"

	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/pkg/controlapi"
)

// Key names the profile of one task of a profiling round. degree is the degree of the round.
func Key(queryID, stageID, degree, task int) string {
	return fmt.Sprintf("q%d/q%d_stage%d_parall%d_task%d.log", queryID, queryID, stageID, degree, task)
}

// AveragesFileName names the file holding the averaged samples of a stage.
func AveragesFileName(queryID, stageID int) string {
	return fmt.Sprintf("q%d_stage%d.profile", queryID, stageID)
}

// TaskKey names the profile of one of the tasks described by tasks, with task its global task id. A single
// stage runs one task whatever the round, so it records under the degree its upstream is described at.
func TaskKey(queryID int, s *dag.StageNode, tasks controlapi.TasksToExecute, task int) string {
	degree := tasks.Current.NumTasks
	if s.IsSingle && !s.IsLeaf {
		degree = tasks.From[0].NumTasks
	}
	return Key(queryID, s.ID, int(degree), task)
}
