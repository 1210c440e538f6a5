// Package profiling turns the per-task profiles recorded by executors into the performance models of a
// query's stages.
package profiling

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

// ErrNoSamples is returned when not a single task of a profiling round left a profile.
var ErrNoSamples = errors.New("no profiles recorded")

// Averages maps stage id to the samples of that stage, in sample order. Index 0 is unused.
type Averages [][]Sample

// TasksInRound returns how many tasks of stage s record a profile in a round at degree. Single stages
// always run one task.
func TasksInRound(s *dag.StageNode, degree int) int {
	if s.IsSingle {
		return 1
	}
	return degree
}

// Aggregate averages, for every stage and sample degree, the profiles recorded by the tasks of that
// round. Missing profiles are skipped and logged.
func Aggregate(ctx *schedcontext.Context, store Store, g *dag.StageGraph, sampleDegrees []int) (Averages, error) {
	averages := make(Averages, len(g.Stages))
	for _, id := range g.StageIDs() {
		s := g.Stage(id)
		for _, degree := range sampleDegrees {
			var sum model.Profile
			found, tasks := 0, TasksInRound(s, degree)
			for task := 0; task < tasks; task++ {
				p, err := store.Get(ctx, Key(g.QueryID, id, degree, task))
				if errors.Is(err, ErrNotFound) {
					ctx.Log.Warnf("no profile for task %d of stage %d at degree %d", task, id, degree)
					continue
				} else if err != nil {
					return nil, err
				}
				sum = sum.Add(p)
				found++
			}
			if found == 0 {
				return nil, errors.Wrapf(ErrNoSamples, "stage %d at degree %d", id, degree)
			}
			if found < tasks {
				ctx.Log.Infof("stage %d at degree %d averaged over %d of %d tasks", id, degree, found, tasks)
			}
			averages[id] = append(averages[id], Sample{Degree: degree, Profile: sum.Div(float64(found))})
		}
	}
	return averages, nil
}

// Save writes the samples of every stage to dir, one file per stage.
func (a Averages) Save(dir string, queryID int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	for id := 1; id < len(a); id++ {
		path := filepath.Join(dir, AveragesFileName(queryID, id))
		f, err := os.Create(path)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := WriteSamples(f, a[id]); err != nil {
			f.Close()
			return errors.WithMessagef(err, "writing %s", path)
		}
		if err := f.Close(); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// LoadAverages reads back the samples Save wrote for every stage of g.
func LoadAverages(dir string, g *dag.StageGraph) (Averages, error) {
	averages := make(Averages, len(g.Stages))
	for _, id := range g.StageIDs() {
		path := filepath.Join(dir, AveragesFileName(g.QueryID, id))
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "profiles of stage %d", id)
		}
		samples, err := ReadSamples(f)
		f.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "reading %s", path)
		}
		averages[id] = samples
	}
	return averages, nil
}

// FitModels fits the performance model of every stage of g to its samples.
func FitModels(g *dag.StageGraph, averages Averages, shmRatio float64) error {
	for _, id := range g.StageIDs() {
		samples := averages[id]
		degrees := make([]int, len(samples))
		profiles := make([]model.Profile, len(samples))
		for i, s := range samples {
			degrees[i] = s.Degree
			profiles[i] = s.Profile
		}
		m, err := model.Fit(degrees, profiles)
		if err != nil {
			return errors.WithMessagef(err, "stage %d", id)
		}
		m.ShmRatio = shmRatio
		g.Stage(id).Model = m
	}
	return nil
}
