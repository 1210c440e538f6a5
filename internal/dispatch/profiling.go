package dispatch

import (
	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/pkg/controlapi"
)

// CheckSampleDegrees returns an error unless every sampled degree is one or splits evenly over servers.
func CheckSampleDegrees(sampleDegrees []int, servers int) error {
	for _, degree := range sampleDegrees {
		if degree != 1 && degree%servers != 0 {
			return errors.Errorf("sample degree %d is not divisible by the %d profiling servers", degree, servers)
		}
	}
	return nil
}

// ProfilingTasks returns what each profiling server runs for stage id in the round sampling degree, indexed
// by server. A parallel stage is split evenly over all servers. A single stage, or any stage in a round at
// degree one, runs as one task on server 0. Every neighbour is described at the round degree, which is how
// a single stage learns the degree of its round, and all edges go through the external store.
func ProfilingTasks(g *dag.StageGraph, id, degree, servers int) []controlapi.TasksToExecute {
	s := g.Stage(id)
	template := controlapi.NewTasksToExecute()
	if s.IsLeaf {
		template.From[0] = controlapi.StageAssignment{StageID: controlapi.DatasetStage, NumTasks: int32(s.InputChunks), ChannelIDStart: 1}
	} else {
		for k, from := range s.FromIDs {
			template.From[k] = controlapi.StageAssignment{StageID: int32(from), NumTasks: int32(degree), ChannelIDStart: 1}
		}
	}
	if s.IsSink() {
		template.To = controlapi.StageAssignment{StageID: controlapi.NoStage, NumTasks: 1, ChannelIDStart: 1}
	} else {
		template.To = controlapi.StageAssignment{StageID: int32(s.ToID), NumTasks: int32(degree), ChannelIDStart: 1}
	}

	if s.IsSingle || degree == 1 {
		template.Current = controlapi.StageAssignment{StageID: int32(id), NumTasks: 1, ChannelIDStart: 1, NumLocalTasks: 1}
		return []controlapi.TasksToExecute{template}
	}
	perServer := int32(degree / servers)
	tasks := make([]controlapi.TasksToExecute, servers)
	for k := range tasks {
		tasks[k] = template
		tasks[k].Current = controlapi.StageAssignment{
			StageID:        int32(id),
			NumTasks:       perServer * int32(servers),
			TaskIDStart:    int32(k) * perServer,
			ChannelIDStart: 1,
			NumLocalTasks:  perServer,
		}
	}
	return tasks
}

// Profile runs every stage of g in isolation once per sampled degree on the connected executors, which
// upload a profile per task. Each run completes before the next starts. Afterwards the executors are told
// to finish.
func (d *Dispatcher) Profile(ctx *schedcontext.Context, g *dag.StageGraph, sampleDegrees []int) error {
	if err := CheckSampleDegrees(sampleDegrees, len(d.conns)); err != nil {
		return err
	}
	queryID := int32(g.QueryID)
	ctx = schedcontext.WithLogField(ctx, "query", queryID)
	for _, degree := range sampleDegrees {
		for _, id := range g.StageIDs() {
			tasks := ProfilingTasks(g, id, degree, len(d.conns))
			conns := d.conns[:len(tasks)]
			for k, c := range conns {
				if err := c.Send(controlapi.NewPacket(controlapi.Exec, queryID, tasks[k])); err != nil {
					return err
				}
				if err := c.Send(controlapi.ControlPacket(controlapi.EndCont)); err != nil {
					return err
				}
			}
			if _, err := collect(ctx, conns, controlapi.Profiled); err != nil {
				return err
			}
			ctx.Log.Infof("profiled stage %d at degree %d on %d executors", id, degree, len(conns))
		}
		if d.metrics != nil {
			d.metrics.ReportProfilingRound()
		}
	}
	if err := broadcast(d.conns, controlapi.ControlPacket(controlapi.End)); err != nil {
		return err
	}
	_, err := collect(ctx, d.conns, controlapi.Ack)
	return err
}
