package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/scheduler/allocation"
	"github.com/armadaproject/elasticsched/internal/scheduler/configuration"
	schedulercontext "github.com/armadaproject/elasticsched/internal/scheduler/context"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/estimate"
	"github.com/armadaproject/elasticsched/internal/scheduler/grouping"
	"github.com/armadaproject/elasticsched/internal/scheduler/testfixtures"
	"github.com/armadaproject/elasticsched/internal/scheduler/timeline"
	"github.com/armadaproject/elasticsched/pkg/controlapi"
)

func TestSchedule(t *testing.T) {
	tests := map[string]struct {
		algorithm configuration.Algorithm
		mode      configuration.SchedulingMode
		slots     []int
	}{
		"elastic jct": {
			algorithm: configuration.Elastic,
			mode:      configuration.JCT,
			slots:     testfixtures.Slots(4, 10),
		},
		"elastic cost": {
			algorithm: configuration.Elastic,
			mode:      configuration.Cost,
			slots:     testfixtures.Slots(4, 10),
		},
		"elastic on a small cluster": {
			algorithm: configuration.Elastic,
			mode:      configuration.JCT,
			slots:     testfixtures.Slots(4, 5),
		},
		"elastic singleton": {
			algorithm: configuration.ElasticSingleton,
			mode:      configuration.JCT,
			slots:     testfixtures.Slots(4, 10),
		},
		"datasize": {
			algorithm: configuration.DataSize,
			slots:     testfixtures.Slots(4, 10),
		},
		"uniform": {
			algorithm: configuration.Uniform,
			slots:     []int{8, 4, 4},
		},
		"greedy": {
			algorithm: configuration.Greedy,
			slots:     []int{8, 4, 4},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			g := testfixtures.JoinGraph()
			config := testfixtures.TestSchedulingConfig(tc.algorithm)
			config.Mode = tc.mode
			run, err := NewScheduler(config, nil).Schedule(schedcontext.Background(), g, tc.slots)
			require.NoError(t, err)

			assert.Equal(t, tc.algorithm, run.Algorithm)
			assert.NotEmpty(t, run.ID)
			assert.False(t, run.Finished.Before(run.Started))
			assert.GreaterOrEqual(t, run.PlacementAttempts, 1)
			assertValidPlan(t, run)
			assert.Greater(t, run.PredictedJCTMs, 0.0)
			assert.Greater(t, run.PredictedCost, 0.0)
		})
	}
}

func TestSchedule_Baselines(t *testing.T) {
	g := testfixtures.JoinGraph()
	slots := []int{8, 4, 4}

	run, err := NewScheduler(testfixtures.TestSchedulingConfig(configuration.Uniform), nil).
		Schedule(schedcontext.Background(), g, slots)
	require.NoError(t, err)
	assert.Equal(t, allocation.Uniform(g, 4), run.Degrees)
	assert.Equal(t, timeline.Naive(g, run.Degrees), run.Timeline)

	run, err = NewScheduler(testfixtures.TestSchedulingConfig(configuration.Greedy), nil).
		Schedule(schedcontext.Background(), g, slots)
	require.NoError(t, err)
	assert.Equal(t, allocation.Uniform(g, 4), run.Degrees)
	assert.Equal(t, timeline.GreedyModes(g), run.Modes())
	assert.Equal(t, timeline.Greedy(g, run.Degrees, 3000), run.Timeline)
	// Gather edges stay local under greedy placement.
	tasks := run.Placement.Plan.Tasks(0, 3)
	assert.True(t, tasks.From[0].IsLocal())
	assert.True(t, tasks.From[1].IsLocal())
}

func TestSchedule_RoundTrip(t *testing.T) {
	// A leaf with 40 input chunks, a single stage and the sink, with a budget of ten slots.
	g := testfixtures.ThreeStageGraph()
	run, err := NewScheduler(testfixtures.TestSchedulingConfig(configuration.Elastic), nil).
		Schedule(schedcontext.Background(), g, []int{6, 5})
	require.NoError(t, err)
	require.Equal(t, 10, run.TotalSlots)

	assert.Zero(t, 40%run.Degrees[1], "leaf degree %d", run.Degrees[1])
	assert.Equal(t, 1, run.Degrees[2])
	assert.LessOrEqual(t, run.Degrees.Sum(g), run.TotalSlots)
	assertValidPlan(t, run)

	leaf, _ := run.Timeline.Offset(1)
	single, _ := run.Timeline.Offset(2)
	sink, _ := run.Timeline.Offset(3)
	assert.Less(t, leaf, single)
	assert.Less(t, single, sink)
}

func TestSchedule_SplitsGroupsUntilPlaced(t *testing.T) {
	// Three gather-linked stages that can only ever get one task each, on an executor with two slots.
	g := testfixtures.GatherChain(60, dag.Gather, dag.Gather)
	config := testfixtures.TestSchedulingConfig(configuration.Elastic)

	run, err := NewScheduler(config, nil).Schedule(schedcontext.Background(), g, []int{2})
	require.NoError(t, err)
	assert.Equal(t, 2, run.PlacementAttempts)
	assert.Equal(t, [][]int{{1, 2}, {3}}, stageIDs(run.Groups))
	assertValidPlan(t, run)

	config.MaxPlacementAttempts = 1
	_, err = NewScheduler(config, nil).Schedule(schedcontext.Background(), g, []int{2})
	assert.Error(t, err)
}

func TestSchedule_GroupsGrowByOnePerRetry(t *testing.T) {
	g := testfixtures.JoinGraph()
	run, err := NewScheduler(testfixtures.TestSchedulingConfig(configuration.Elastic), nil).
		Schedule(schedcontext.Background(), g, testfixtures.Slots(4, 5))
	require.NoError(t, err)
	initial := len(grouping.Bundle(g, 3))
	assert.Equal(t, initial+run.PlacementAttempts-1, len(run.Groups))
}

func TestSchedule_Errors(t *testing.T) {
	tests := map[string]struct {
		graph     *dag.StageGraph
		algorithm configuration.Algorithm
	}{
		"unknown algorithm": {
			graph:     testfixtures.JoinGraph(),
			algorithm: configuration.Algorithm("optimal"),
		},
		"stage without a model": {
			graph: func() *dag.StageGraph {
				g := testfixtures.JoinGraph()
				g.Stage(4).Model = nil
				return g
			}(),
			algorithm: configuration.Elastic,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewScheduler(testfixtures.TestSchedulingConfig(tc.algorithm), nil).
				Schedule(schedcontext.Background(), tc.graph, testfixtures.Slots(4, 10))
			assert.Error(t, err)
		})
	}
}

func TestLowerBounds(t *testing.T) {
	g := testfixtures.JoinGraph()
	s := NewScheduler(testfixtures.TestSchedulingConfig(configuration.Elastic), nil)
	bounds, err := s.LowerBounds(schedcontext.Background(), g, testfixtures.Slots(4, 10))
	require.NoError(t, err)

	assert.Equal(t, 1, bounds.Degrees[7])
	assert.Equal(t, 1, bounds.Degrees[8])
	planned := allocation.SetWeights(g, grouping.Singleton(g)).Modes
	assert.LessOrEqual(t, bounds.JCTMs, estimate.LongestPath(g, bounds.Degrees, planned))
	assert.LessOrEqual(t, bounds.Cost, estimate.Cost(g, bounds.Degrees, planned, 1500))
}

// assertValidPlan checks that the plan runs every task of every stage exactly once and that every stage
// has a launch time. Elastic plans must also keep every executor within its slots unless the budget
// could not give each stage a task.
func assertValidPlan(t *testing.T, run *schedulercontext.SchedulingRun) {
	g := run.Graph
	require.NotNil(t, run.Placement)
	assert.Len(t, run.Timeline, g.NumStages())
	for _, id := range g.StageIDs() {
		s := g.Stage(id)
		if s.IsSingle {
			assert.Equal(t, 1, run.Degrees[id], "single stage %d", id)
		}
		if s.IsLeaf {
			assert.Zero(t, s.InputChunks%run.Degrees[id], "leaf %d", id)
		}
		total := 0
		for _, local := range run.Placement.Table.LocalTasks(id) {
			total += local
		}
		assert.Equal(t, run.Degrees[id], total, "stage %d", id)
		_, ok := run.Timeline.Offset(id)
		assert.True(t, ok, "stage %d", id)

		for e := 0; e < run.NumExecutors(); e++ {
			tasks := run.Placement.Plan.Tasks(e, id)
			assert.Equal(t, int32(id), tasks.Current.StageID)
			if s.IsSink() {
				assert.Equal(t, controlapi.NoStage, tasks.To.StageID)
			}
		}
	}

	elastic := run.Algorithm == configuration.Elastic || run.Algorithm == configuration.ElasticSingleton
	for e := 0; e < run.NumExecutors(); e++ {
		local := 0
		for _, id := range g.StageIDs() {
			local += run.Placement.Table.LocalTasks(id)[e]
		}
		assert.Equal(t, run.Placement.Placed[e]+run.Placement.Oversubscribed[e], local, "executor %d", e)
		if elastic && run.Refinement.Unused() >= 0 {
			assert.LessOrEqual(t, local, run.Slots[e], "executor %d", e)
		}
	}
}

func stageIDs(groups []*grouping.StageGroup) [][]int {
	ids := make([][]int, len(groups))
	for i, group := range groups {
		ids[i] = group.StageIDs
	}
	return ids
}
