package dispatch

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	schedulercontext "github.com/armadaproject/elasticsched/internal/scheduler/context"
	"github.com/armadaproject/elasticsched/pkg/controlapi"
)

// Outcome is what was measured while running a plan.
type Outcome struct {
	// Time from the first launch until every executor acknowledged completion.
	JCT time.Duration
	// Sum of the costs reported by the executors.
	Cost           float64
	CostByExecutor []float64
}

type Dispatcher struct {
	conns        []*Conn
	clock        clock.WithTicker
	pollInterval time.Duration
	metrics      *Metrics
}

// NewDispatcher returns a dispatcher sending to conns, where conns[i] is executor i. metrics may be nil.
func NewDispatcher(conns []*Conn, clock clock.WithTicker, pollInterval time.Duration, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		conns:        conns,
		clock:        clock,
		pollInterval: pollInterval,
		metrics:      metrics,
	}
}

// Dispatch runs the plan of run. Every stage is launched on every executor once its timeline offset has
// elapsed; launches are not acknowledged. Once every stage has been launched each executor is told to
// finish, and Dispatch waits for all of them before collecting costs. Any I/O error aborts the run.
func (d *Dispatcher) Dispatch(ctx *schedcontext.Context, run *schedulercontext.SchedulingRun) (*Outcome, error) {
	if run.Placement == nil {
		return nil, errors.Errorf("run %s has no placement", run.ID)
	}
	plan := run.Placement.Plan
	if plan.NumExecutors() != len(d.conns) {
		return nil, errors.Errorf("plan is for %d executors but %d are connected", plan.NumExecutors(), len(d.conns))
	}
	queryID := int32(run.Graph.QueryID)
	ctx = schedcontext.WithLogFields(ctx, logrus.Fields{"query": queryID, "run": run.ID})

	start := d.clock.Now()
	ticker := d.clock.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for k := 0; k < len(run.Timeline); {
		elapsed := d.clock.Since(start).Microseconds()
		for ; k < len(run.Timeline) && elapsed >= run.Timeline[k].OffsetMicros; k++ {
			entry := run.Timeline[k]
			for e, c := range d.conns {
				if err := c.Send(controlapi.NewPacket(controlapi.Exec, queryID, plan.Tasks(e, entry.StageID))); err != nil {
					return nil, err
				}
			}
			ctx.Log.Debugf("launched stage %d at %dus, scheduled at %dus", entry.StageID, elapsed, entry.OffsetMicros)
			if d.metrics != nil {
				d.metrics.ReportLaunch(d.clock.Since(start) - time.Duration(entry.OffsetMicros)*time.Microsecond)
			}
		}
		if k == len(run.Timeline) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C():
		}
	}
	ctx.Log.Infof("launched %d stages", len(run.Timeline))

	if err := broadcast(d.conns, controlapi.ControlPacket(controlapi.End)); err != nil {
		return nil, err
	}
	if _, err := collect(ctx, d.conns, controlapi.Ack); err != nil {
		return nil, err
	}
	outcome := &Outcome{JCT: d.clock.Since(start)}
	ctx.Log.Infof("JCT: %d ms", outcome.JCT.Milliseconds())

	costs, err := collect(ctx, d.conns, controlapi.Cost)
	if err != nil {
		return nil, err
	}
	outcome.CostByExecutor = make([]float64, len(costs))
	for e, p := range costs {
		outcome.CostByExecutor[e] = p.Cost
		outcome.Cost += p.Cost
	}
	ctx.Log.Infof("cost: %.2f", outcome.Cost)
	if d.metrics != nil {
		d.metrics.ReportOutcome(run, outcome)
	}
	return outcome, nil
}

func broadcast(conns []*Conn, p *controlapi.Packet) error {
	for _, c := range conns {
		if err := c.Send(p); err != nil {
			return err
		}
	}
	return nil
}

// collect waits for a packet carrying tag from every connection and returns them in connection order.
// It gives up on every connection as soon as one fails or ctx is done.
func collect(ctx *schedcontext.Context, conns []*Conn, tag controlapi.Tag) ([]*controlapi.Packet, error) {
	packets := make([]*controlapi.Packet, len(conns))
	g, groupCtx := schedcontext.ErrGroup(ctx)
	for e, c := range conns {
		e, c := e, c
		g.Go(func() error {
			p, err := c.Expect(groupCtx, tag)
			if err != nil {
				return err
			}
			packets[e] = p
			ctx.Log.Debugf("%s received from executor %d", tag, e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return packets, nil
}
