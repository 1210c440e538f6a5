package scheduler

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/scheduler/allocation"
	"github.com/armadaproject/elasticsched/internal/scheduler/configuration"
	schedulercontext "github.com/armadaproject/elasticsched/internal/scheduler/context"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/estimate"
	"github.com/armadaproject/elasticsched/internal/scheduler/grouping"
	"github.com/armadaproject/elasticsched/internal/scheduler/placement"
	"github.com/armadaproject/elasticsched/internal/scheduler/timeline"
)

// Scheduler turns the stage graph of a query into a placed and timed plan.
type Scheduler struct {
	config  configuration.SchedulingConfig
	refiner allocation.Refiner
	metrics *SchedulerMetrics
}

// NewScheduler returns a scheduler. metrics may be nil.
func NewScheduler(config configuration.SchedulingConfig, metrics *SchedulerMetrics) *Scheduler {
	return &Scheduler{
		config: config,
		refiner: allocation.Refiner{
			LeafRoundUpTolerance: config.LeafRoundUpTolerance,
			ExpansionFactors:     config.ExpansionFactors,
		},
		metrics: metrics,
	}
}

// Schedule plans g on executors with the given slots using the configured algorithm. Every stage of g
// must have a performance model.
func (s *Scheduler) Schedule(ctx *schedcontext.Context, g *dag.StageGraph, slots []int) (*schedulercontext.SchedulingRun, error) {
	if err := checkModels(g); err != nil {
		return nil, err
	}
	run := schedulercontext.NewSchedulingRun(g, s.config.Mode, s.config.Algorithm, slots)
	ctx = schedcontext.WithLogFields(ctx, logrus.Fields{
		"query":     g.QueryID,
		"run":       run.ID,
		"algorithm": run.Algorithm,
	})
	ctx.Log.Infof("scheduling %d stages on %d executors with %d slots", g.NumStages(), len(slots), run.TotalSlots)

	var err error
	switch s.config.Algorithm {
	case configuration.Elastic:
		err = s.scheduleElastic(ctx, run, grouping.Bundle(g, s.config.MaxStagesPerGroup))
	case configuration.ElasticSingleton:
		err = s.scheduleElastic(ctx, run, grouping.Singleton(g))
	case configuration.DataSize:
		s.scheduleDataSize(ctx, run)
	case configuration.Uniform:
		s.scheduleUniform(run)
	case configuration.Greedy:
		s.scheduleGreedy(run)
	default:
		err = errors.Errorf("unknown algorithm %q", s.config.Algorithm)
	}
	if err != nil {
		return nil, err
	}

	modes := run.Modes()
	run.PredictedCost = estimate.Cost(g, run.Degrees, modes, s.config.LaunchOverheadMs)
	run.PredictedJCTMs = estimate.LongestPath(g, run.Degrees, modes)
	run.Finish()
	ctx.Log.Infof(
		"planned %d tasks in %s; predicted jct %.0fms, cost %.1f",
		run.Degrees.Sum(g), run.Duration(), run.PredictedJCTMs, run.PredictedCost,
	)
	if s.metrics != nil {
		s.metrics.ReportRun(run)
	}
	return run, nil
}

// scheduleElastic allocates, refines and places until every group fits. Each failed placement splits a
// group, so the loop ends once every group is a singleton at the latest; MaxPlacementAttempts bounds it
// regardless.
func (s *Scheduler) scheduleElastic(ctx *schedcontext.Context, run *schedulercontext.SchedulingRun, groups []*grouping.StageGroup) error {
	g := run.Graph
	for {
		if run.PlacementAttempts >= s.config.MaxPlacementAttempts {
			return errors.Errorf("no feasible placement after %d attempts", run.PlacementAttempts)
		}
		run.PlacementAttempts++
		run.Weights = allocation.SetWeights(g, groups)
		if s.config.Mode == configuration.JCT {
			run.Degrees = allocation.ByJCT(ctx, g, run.Weights, run.TotalSlots)
		} else {
			run.Degrees = allocation.ByCost(ctx, g, run.Weights, run.TotalSlots)
		}
		run.Refinement = s.refiner.Refine(ctx, g, run.Degrees, run.TotalSlots)

		result, regrouped, err := placement.Elastic(ctx, g, groups, run.Degrees, run.Slots)
		groups = regrouped
		if errors.Is(err, placement.ErrPlacementRetry) {
			if s.metrics != nil {
				s.metrics.ReportPlacementRetry()
			}
			continue
		} else if err != nil {
			return err
		}
		run.Groups = groups
		run.Placement = result
		break
	}
	run.Timeline = timeline.Elastic(g, run.Degrees, run.Weights.Modes, run.Groups, s.config.ColocatedSlackMs.For(s.config.Mode))
	return nil
}

func (s *Scheduler) scheduleDataSize(ctx *schedcontext.Context, run *schedulercontext.SchedulingRun) {
	g := run.Graph
	run.Groups = grouping.Singleton(g)
	run.Weights = allocation.SetWeights(g, run.Groups)
	run.Degrees = allocation.ByDataSize(ctx, g, run.TotalSlots)
	run.Refinement = allocation.BaselineRefiner.Refine(ctx, g, run.Degrees, run.TotalSlots)
	run.PlacementAttempts = 1
	run.Placement = placement.Uniform(g, run.Degrees, run.Slots)
	run.Timeline = timeline.Naive(g, run.Degrees)
}

func (s *Scheduler) scheduleUniform(run *schedulercontext.SchedulingRun) {
	g := run.Graph
	run.Groups = grouping.Singleton(g)
	run.Weights = allocation.SetWeights(g, run.Groups)
	run.Degrees = allocation.Uniform(g, s.config.BaseDegree)
	run.Refinement = allocation.Refinement{TotalSlots: run.TotalSlots, Allocated: run.Degrees.Sum(g)}
	run.PlacementAttempts = 1
	run.Placement = placement.Uniform(g, run.Degrees, run.Slots)
	run.Timeline = timeline.Naive(g, run.Degrees)
}

func (s *Scheduler) scheduleGreedy(run *schedulercontext.SchedulingRun) {
	g := run.Graph
	run.Groups = grouping.Singleton(g)
	run.Weights = &allocation.Weights{Modes: timeline.GreedyModes(g)}
	run.Degrees = allocation.Uniform(g, s.config.BaseDegree)
	run.Refinement = allocation.Refinement{TotalSlots: run.TotalSlots, Allocated: run.Degrees.Sum(g)}
	run.PlacementAttempts = 1
	run.Placement = placement.Greedy(g, run.Degrees, run.Slots)
	run.Timeline = timeline.Greedy(g, run.Degrees, s.config.GreedySlackMs)
}

// LowerBounds are the completion time and cost of g if every edge that could stay in shared memory did.
type LowerBounds struct {
	JCTMs   float64
	Cost    float64
	Degrees allocation.Degrees
}

// LowerBounds allocates g for the configured objective assuming the best case execution mode of every
// stage, and predicts the resulting completion time and cost. Placement is not taken into account.
func (s *Scheduler) LowerBounds(ctx *schedcontext.Context, g *dag.StageGraph, slots []int) (LowerBounds, error) {
	if err := checkModels(g); err != nil {
		return LowerBounds{}, err
	}
	total := allocation.TotalSlots(g, slots)
	w := allocation.OptimalWeights(g)
	var degrees allocation.Degrees
	if s.config.Mode == configuration.JCT {
		degrees = allocation.ByJCT(ctx, g, w, total)
	} else {
		degrees = allocation.ByCost(ctx, g, w, total)
	}
	s.refiner.Refine(ctx, g, degrees, total)
	return LowerBounds{
		JCTMs:   estimate.LongestPath(g, degrees, w.Modes),
		Cost:    estimate.Cost(g, degrees, w.Modes, s.config.LaunchOverheadMs),
		Degrees: degrees,
	}, nil
}

func checkModels(g *dag.StageGraph) error {
	for _, id := range g.StageIDs() {
		if g.Stage(id).Model == nil {
			return errors.Errorf("stage %d of query %d has no performance model", id, g.QueryID)
		}
	}
	return nil
}
