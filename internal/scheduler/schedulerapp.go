package scheduler

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/armadaproject/elasticsched/internal/common/app"
	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/dispatch"
	"github.com/armadaproject/elasticsched/internal/scheduler/configuration"
	schedulercontext "github.com/armadaproject/elasticsched/internal/scheduler/context"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/profiling"
)

// Run plans query with the configured algorithm and dispatches the plan to the configured executors. The
// plan and the measured outcome are written to out.
func Run(config configuration.Configuration, queryID int, verbosity int32, out io.Writer) error {
	ctx := app.CreateContextWithShutdown()
	registry, shutdownMetrics := app.SetupMetrics(config.Metrics.Port)
	defer shutdownMetrics()

	run, err := plan(ctx, config, queryID, NewSchedulerMetrics(registry))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, run.ReportString(verbosity))

	conns, err := dispatch.Dial(ctx, executorAddresses(config, len(config.Executors)), config.Dispatch.DialTimeout, config.Dispatch.DialAttempts)
	if err != nil {
		return err
	}
	defer func() {
		if err := dispatch.CloseAll(conns); err != nil {
			ctx.Log.WithError(err).Warn("executor connections didn't close down cleanly")
		}
	}()
	dispatcher := dispatch.NewDispatcher(conns, clock.RealClock{}, config.Dispatch.PollInterval, dispatch.NewMetrics(registry))
	outcome, err := dispatcher.Dispatch(ctx, run)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "JCT: %d ms\nCost: %.2f\n", outcome.JCT.Milliseconds(), outcome.Cost)
	return nil
}

// Plan plans query without dispatching it and writes the plan, along with the lower bounds on its
// completion time and cost, to out.
func Plan(config configuration.Configuration, queryID int, verbosity int32, out io.Writer) error {
	ctx := schedcontext.Background()
	run, err := plan(ctx, config, queryID, nil)
	if err != nil {
		return err
	}
	bounds, err := NewScheduler(config.Scheduling, nil).LowerBounds(ctx, run.Graph, config.Slots())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, run.ReportString(verbosity))
	fmt.Fprintf(out, "Lower bound JCT: %.0fms\nLower bound cost: %.1f\n", bounds.JCTMs, bounds.Cost)
	return nil
}

// Profile runs every stage of query at each sampled degree on the profiling executors, which upload the
// profiles of their tasks to the profile store.
func Profile(config configuration.Configuration, queryID int) error {
	ctx := app.CreateContextWithShutdown()
	registry, shutdownMetrics := app.SetupMetrics(config.Metrics.Port)
	defer shutdownMetrics()

	g, err := loadGraph(config, queryID)
	if err != nil {
		return err
	}
	if err := dispatch.CheckSampleDegrees(config.Profiling.SampleDegrees, config.Profiling.Servers); err != nil {
		return err
	}
	conns, err := dispatch.Dial(ctx, executorAddresses(config, config.Profiling.Servers), config.Dispatch.DialTimeout, config.Dispatch.DialAttempts)
	if err != nil {
		return err
	}
	defer func() {
		if err := dispatch.CloseAll(conns); err != nil {
			ctx.Log.WithError(err).Warn("executor connections didn't close down cleanly")
		}
	}()
	start := time.Now()
	dispatcher := dispatch.NewDispatcher(conns, clock.RealClock{}, config.Dispatch.PollInterval, dispatch.NewMetrics(registry))
	if err := dispatcher.Profile(ctx, g, config.Profiling.SampleDegrees); err != nil {
		return err
	}
	ctx.Log.Infof("profiled query %d in %s", queryID, time.Since(start))
	return nil
}

// Aggregate averages the task profiles of query from the profile store into per stage samples, saves them
// to the profiling directory and writes the models fitted to them to out.
func Aggregate(config configuration.Configuration, queryID int, out io.Writer) error {
	ctx := schedcontext.WithLogField(schedcontext.Background(), "query", queryID)
	g, err := loadGraph(config, queryID)
	if err != nil {
		return err
	}
	store, err := profiling.NewStore(config.Profiling.Store)
	if err != nil {
		return err
	}
	averages, err := profiling.Aggregate(ctx, store, g, config.Profiling.SampleDegrees)
	if err != nil {
		return err
	}
	if err := averages.Save(config.Profiling.Directory, queryID); err != nil {
		return err
	}
	ctx.Log.Infof("saved averaged profiles of %d stages to %s", g.NumStages(), config.Profiling.Directory)
	if err := profiling.FitModels(g, averages, config.Scheduling.ShmRatio); err != nil {
		return err
	}
	writeModels(out, g)
	return nil
}

func plan(
	ctx *schedcontext.Context,
	config configuration.Configuration,
	queryID int,
	metrics *SchedulerMetrics,
) (*schedulercontext.SchedulingRun, error) {
	g, err := loadGraph(config, queryID)
	if err != nil {
		return nil, err
	}
	averages, err := profiling.LoadAverages(config.Profiling.Directory, g)
	if err != nil {
		return nil, errors.WithMessage(err, "run aggregate first")
	}
	if err := profiling.FitModels(g, averages, config.Scheduling.ShmRatio); err != nil {
		return nil, err
	}
	return NewScheduler(config.Scheduling, metrics).Schedule(ctx, g, config.Slots())
}

func loadGraph(config configuration.Configuration, queryID int) (*dag.StageGraph, error) {
	g, err := dag.Load(config.DagDirectory, queryID)
	if err != nil {
		return nil, err
	}
	limits := dag.Limits{MaxStages: config.Scheduling.MaxStages, MaxInDegree: config.Scheduling.MaxInDegree}
	if err := g.Validate(limits); err != nil {
		return nil, err
	}
	return g, nil
}

func executorAddresses(config configuration.Configuration, n int) []string {
	addresses := make([]string, n)
	for i := range addresses {
		addresses[i] = config.Executors[i].Address
	}
	return addresses
}

func writeModels(out io.Writer, g *dag.StageGraph) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Stage", "Pre", "Read1", "Read2", "Comp", "Write"})
	curve := func(a, b float64) string {
		return strconv.FormatFloat(a, 'f', 1, 64) + "/d + " + strconv.FormatFloat(b, 'f', 1, 64)
	}
	for _, id := range g.StageIDs() {
		m := g.Stage(id).Model
		table.Append([]string{
			strconv.Itoa(id),
			curve(m.Pre.A, m.Pre.B),
			curve(m.Read1.A, m.Read1.B),
			curve(m.Read2.A, m.Read2.B),
			curve(m.Comp.A, m.Comp.B),
			curve(m.Write.A, m.Write.B),
		})
	}
	table.Render()
}
