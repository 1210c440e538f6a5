package executor

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/executor/configuration"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/model"
	"github.com/armadaproject/elasticsched/pkg/controlapi"
)

// SimulatedRunner runs tasks in process. A task sleeps for its simulated duration, scaled by TimeScale, and
// reports a profile derived from the size of its input.
type SimulatedRunner struct {
	config  configuration.SimulationConfig
	clock   clock.Clock
	wg      sync.WaitGroup
	mu      sync.Mutex
	results []TaskResult
}

func NewSimulatedRunner(config configuration.SimulationConfig, clock clock.Clock) *SimulatedRunner {
	return &SimulatedRunner{config: config, clock: clock}
}

func (r *SimulatedRunner) Run(ctx *schedcontext.Context, s *dag.StageNode, tasks controlapi.TasksToExecute) error {
	for i := 0; i < int(tasks.Current.NumLocalTasks); i++ {
		result := TaskResult{
			Stage:   s,
			Tasks:   tasks,
			TaskID:  int(tasks.Current.TaskIDStart) + i,
			Profile: SimulateProfile(s, tasks, r.config.MsPerInputUnit, r.config.ShmRatio),
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if r.config.TimeScale > 0 {
				r.clock.Sleep(time.Duration(result.Profile.TotalTime() * r.config.TimeScale * float64(time.Millisecond)))
			}
			r.mu.Lock()
			r.results = append(r.results, result)
			r.mu.Unlock()
		}()
	}
	ctx.Log.Debugf("started %d tasks of stage %d", tasks.Current.NumLocalTasks, s.ID)
	return nil
}

func (r *SimulatedRunner) Wait(ctx *schedcontext.Context) ([]TaskResult, error) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}
	r.mu.Lock()
	results := r.results
	r.results = nil
	r.mu.Unlock()
	slices.SortFunc(results, func(a, b TaskResult) int {
		if a.Stage.ID != b.Stage.ID {
			return a.Stage.ID - b.Stage.ID
		}
		return a.TaskID - b.TaskID
	})
	return results, nil
}

// SimulateProfile returns the profile of one task described by tasks. The work of the stage is proportional
// to its input and split evenly across its tasks; I/O over a shared memory edge is shmRatio times faster.
func SimulateProfile(s *dag.StageNode, tasks controlapi.TasksToExecute, msPerInputUnit, shmRatio float64) model.Profile {
	work := msPerInputUnit * s.Memory.InputSize / float64(tasks.Current.NumTasks)
	io := func(share float64, a controlapi.StageAssignment) float64 {
		if a.IsLocal() {
			return share * work / shmRatio
		}
		return share * work
	}
	p := model.Profile{
		Effect: model.EffectTime{
			Read1: io(0.3, tasks.From[0]),
			Comp:  0.4 * work,
			Write: io(0.15, tasks.To),
			Post:  0.05 * work,
		},
	}
	if tasks.From[1].StageID != controlapi.NoStage {
		p.Effect.Read2 = io(0.15, tasks.From[1])
	}
	if !s.IsLeaf {
		p.Pre = model.PreTime{Pre: 0.02 * work, Read: 0.03 * work, Comp: 0.05 * work}
	}
	return p
}
