package dispatch

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/scheduler/allocation"
	"github.com/armadaproject/elasticsched/internal/scheduler/configuration"
	schedulercontext "github.com/armadaproject/elasticsched/internal/scheduler/context"
	"github.com/armadaproject/elasticsched/internal/scheduler/placement"
	"github.com/armadaproject/elasticsched/internal/scheduler/testfixtures"
	"github.com/armadaproject/elasticsched/internal/scheduler/timeline"
	"github.com/armadaproject/elasticsched/pkg/controlapi"
)

// fakeExecutor accepts one control connection, records every packet it receives and answers like an
// executor whose tasks finish instantly.
type fakeExecutor struct {
	listener net.Listener
	received chan *controlapi.Packet
}

func startFakeExecutor(t *testing.T, cost float64) *fakeExecutor {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	e := &fakeExecutor{listener: listener, received: make(chan *controlapi.Packet, 256)}
	t.Cleanup(func() { listener.Close() })
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		profiling := false
		for {
			p, err := controlapi.ReadPacket(conn)
			if err != nil {
				return
			}
			e.received <- p
			switch p.Tag {
			case controlapi.EndCont:
				profiling = true
				if err := controlapi.WritePacket(conn, controlapi.ControlPacket(controlapi.Profiled)); err != nil {
					return
				}
			case controlapi.End:
				if err := controlapi.WritePacket(conn, controlapi.ControlPacket(controlapi.Ack)); err != nil {
					return
				}
				if !profiling {
					if err := controlapi.WritePacket(conn, controlapi.CostPacket(cost)); err != nil {
						return
					}
				}
			}
		}
	}()
	return e
}

func (e *fakeExecutor) next(t *testing.T) *controlapi.Packet {
	select {
	case p := <-e.received:
		return p
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for a packet")
		return nil
	}
}

func dialFakeExecutors(t *testing.T, costs ...float64) ([]*fakeExecutor, []*Conn) {
	executors := make([]*fakeExecutor, len(costs))
	addresses := make([]string, len(costs))
	for i, cost := range costs {
		executors[i] = startFakeExecutor(t, cost)
		addresses[i] = executors[i].listener.Addr().String()
	}
	conns, err := Dial(schedcontext.Background(), addresses, time.Second, 1)
	require.NoError(t, err)
	t.Cleanup(func() { CloseAll(conns) })
	return executors, conns
}

func plannedRun(numExecutors int) *schedulercontext.SchedulingRun {
	g := testfixtures.JoinGraph()
	slots := testfixtures.Slots(numExecutors, 8)
	run := schedulercontext.NewSchedulingRun(g, configuration.JCT, configuration.Uniform, slots)
	run.Degrees = allocation.Uniform(g, 4)
	run.Placement = placement.Uniform(g, run.Degrees, slots)
	run.Timeline = timeline.Naive(g, run.Degrees)
	return run
}

func TestDispatch(t *testing.T) {
	executors, conns := dialFakeExecutors(t, 1.5, 2.5)
	run := plannedRun(2)
	// Launch a stage every millisecond, in reverse id order.
	run.Timeline = nil
	for i, id := range run.Graph.StageIDs() {
		run.Timeline = append(run.Timeline, timeline.Entry{StageID: run.Graph.NumStages() + 1 - id, OffsetMicros: int64(i) * 1000})
	}

	outcome, err := NewDispatcher(conns, clock.RealClock{}, time.Millisecond, nil).Dispatch(schedcontext.Background(), run)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, outcome.Cost, 1e-9)
	assert.Equal(t, []float64{1.5, 2.5}, outcome.CostByExecutor)
	assert.GreaterOrEqual(t, outcome.JCT, 7*time.Millisecond)

	for e, executor := range executors {
		for _, entry := range run.Timeline {
			p := executor.next(t)
			assert.Equal(t, controlapi.Exec, p.Tag)
			assert.Equal(t, int32(testfixtures.TestQueryID), p.QueryID)
			assert.Equal(t, run.Placement.Plan.Tasks(e, entry.StageID), p.Tasks)
		}
		assert.Equal(t, controlapi.End, executor.next(t).Tag)
	}
}

func TestDispatch_WaitsForOffset(t *testing.T) {
	executors, conns := dialFakeExecutors(t, 1, 1)
	run := plannedRun(2)
	run.Timeline = timeline.Timeline{{StageID: 1, OffsetMicros: 0}}
	for id := 2; id <= run.Graph.NumStages(); id++ {
		run.Timeline = append(run.Timeline, timeline.Entry{StageID: id, OffsetMicros: 5_000_000})
	}
	fakeClock := clocktesting.NewFakeClock(time.Now())

	type result struct {
		outcome *Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := NewDispatcher(conns, fakeClock, time.Second, nil).Dispatch(schedcontext.Background(), run)
		done <- result{outcome, err}
	}()

	for _, executor := range executors {
		p := executor.next(t)
		assert.Equal(t, int32(1), p.Tasks.Current.StageID)
	}
	select {
	case <-done:
		require.FailNow(t, "dispatch finished before the remaining stages were due")
	case <-time.After(20 * time.Millisecond):
	}

	fakeClock.Step(5 * time.Second)
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, 5*time.Second, r.outcome.JCT)
	for _, executor := range executors {
		for id := 2; id <= run.Graph.NumStages(); id++ {
			assert.Equal(t, int32(id), executor.next(t).Tasks.Current.StageID)
		}
		assert.Equal(t, controlapi.End, executor.next(t).Tag)
	}
}

func TestDispatch_ExecutorCountMismatch(t *testing.T) {
	_, conns := dialFakeExecutors(t, 1)
	run := plannedRun(2)
	_, err := NewDispatcher(conns, clock.RealClock{}, time.Millisecond, nil).Dispatch(schedcontext.Background(), run)
	assert.Error(t, err)
}

func TestDial_ClosesOnFailure(t *testing.T) {
	executor := startFakeExecutor(t, 0)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	unreachable := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = Dial(schedcontext.Background(), []string{executor.listener.Addr().String(), unreachable}, 100*time.Millisecond, 3)
	assert.ErrorContains(t, err, "executor 1")
}

func TestCollect_StopsWhenCancelled(t *testing.T) {
	// An executor that accepts the connection but never answers.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(io.Discard, conn)
	}()
	conns, err := Dial(schedcontext.Background(), []string{listener.Addr().String()}, time.Second, 1)
	require.NoError(t, err)
	t.Cleanup(func() { CloseAll(conns) })

	ctx, cancel := schedcontext.WithCancel(schedcontext.Background())
	done := make(chan error, 1)
	go func() {
		_, err := collect(ctx, conns, controlapi.Ack)
		done <- err
	}()
	time.AfterFunc(50*time.Millisecond, cancel)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorContains(t, err, "executor 0")
	case <-time.After(5 * time.Second):
		require.FailNow(t, "collect did not return after cancellation")
	}
}

func TestProfile(t *testing.T) {
	executors, conns := dialFakeExecutors(t, 0, 0)
	g := testfixtures.JoinGraph()
	sampleDegrees := []int{2, 4}
	require.NoError(t, NewDispatcher(conns, clock.RealClock{}, time.Millisecond, nil).Profile(schedcontext.Background(), g, sampleDegrees))

	for e, executor := range executors {
		for _, degree := range sampleDegrees {
			for _, id := range g.StageIDs() {
				if e > 0 && g.Stage(id).IsSingle {
					continue
				}
				p := executor.next(t)
				require.Equal(t, controlapi.Exec, p.Tag)
				assert.Equal(t, ProfilingTasks(g, id, degree, 2)[e], p.Tasks)
				assert.Equal(t, controlapi.EndCont, executor.next(t).Tag)
			}
		}
		assert.Equal(t, controlapi.End, executor.next(t).Tag)
	}
}

func TestProfile_RejectsIndivisibleDegrees(t *testing.T) {
	_, conns := dialFakeExecutors(t, 0, 0)
	err := NewDispatcher(conns, clock.RealClock{}, time.Millisecond, nil).Profile(schedcontext.Background(), testfixtures.JoinGraph(), []int{2, 3})
	assert.Error(t, err)
}

func TestProfilingTasks(t *testing.T) {
	g := testfixtures.JoinGraph()
	tests := map[string]struct {
		id       int
		degree   int
		expected []controlapi.TasksToExecute
	}{
		"leaf split over servers": {
			id:     1,
			degree: 4,
			expected: []controlapi.TasksToExecute{
				{
					Current: controlapi.StageAssignment{StageID: 1, NumTasks: 4, TaskIDStart: 0, ChannelIDStart: 1, NumLocalTasks: 2},
					To:      controlapi.StageAssignment{StageID: 3, NumTasks: 4, ChannelIDStart: 1},
					From:    [3]controlapi.StageAssignment{{StageID: controlapi.DatasetStage, NumTasks: 60, ChannelIDStart: 1}, controlapi.Unassigned, controlapi.Unassigned},
				},
				{
					Current: controlapi.StageAssignment{StageID: 1, NumTasks: 4, TaskIDStart: 2, ChannelIDStart: 1, NumLocalTasks: 2},
					To:      controlapi.StageAssignment{StageID: 3, NumTasks: 4, ChannelIDStart: 1},
					From:    [3]controlapi.StageAssignment{{StageID: controlapi.DatasetStage, NumTasks: 60, ChannelIDStart: 1}, controlapi.Unassigned, controlapi.Unassigned},
				},
			},
		},
		"downstream single stage is described at the round degree": {
			id:     6,
			degree: 2,
			expected: []controlapi.TasksToExecute{
				{
					Current: controlapi.StageAssignment{StageID: 6, NumTasks: 2, TaskIDStart: 0, ChannelIDStart: 1, NumLocalTasks: 1},
					To:      controlapi.StageAssignment{StageID: 7, NumTasks: 2, ChannelIDStart: 1},
					From: [3]controlapi.StageAssignment{
						{StageID: 4, NumTasks: 2, ChannelIDStart: 1},
						{StageID: 5, NumTasks: 2, ChannelIDStart: 1},
						controlapi.Unassigned,
					},
				},
				{
					Current: controlapi.StageAssignment{StageID: 6, NumTasks: 2, TaskIDStart: 1, ChannelIDStart: 1, NumLocalTasks: 1},
					To:      controlapi.StageAssignment{StageID: 7, NumTasks: 2, ChannelIDStart: 1},
					From: [3]controlapi.StageAssignment{
						{StageID: 4, NumTasks: 2, ChannelIDStart: 1},
						{StageID: 5, NumTasks: 2, ChannelIDStart: 1},
						controlapi.Unassigned,
					},
				},
			},
		},
		"single sink runs on the first server": {
			id:     8,
			degree: 4,
			expected: []controlapi.TasksToExecute{
				{
					Current: controlapi.StageAssignment{StageID: 8, NumTasks: 1, ChannelIDStart: 1, NumLocalTasks: 1},
					To:      controlapi.StageAssignment{StageID: controlapi.NoStage, NumTasks: 1, ChannelIDStart: 1},
					From:    [3]controlapi.StageAssignment{{StageID: 7, NumTasks: 4, ChannelIDStart: 1}, controlapi.Unassigned, controlapi.Unassigned},
				},
			},
		},
		"degree one runs on the first server": {
			id:     3,
			degree: 1,
			expected: []controlapi.TasksToExecute{
				{
					Current: controlapi.StageAssignment{StageID: 3, NumTasks: 1, ChannelIDStart: 1, NumLocalTasks: 1},
					To:      controlapi.StageAssignment{StageID: 4, NumTasks: 1, ChannelIDStart: 1},
					From: [3]controlapi.StageAssignment{
						{StageID: 1, NumTasks: 1, ChannelIDStart: 1},
						{StageID: 2, NumTasks: 1, ChannelIDStart: 1},
						controlapi.Unassigned,
					},
				},
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ProfilingTasks(g, tc.id, tc.degree, 2))
		})
	}
}

func TestCheckSampleDegrees(t *testing.T) {
	assert.NoError(t, CheckSampleDegrees([]int{1, 2, 4, 12}, 2))
	assert.Error(t, CheckSampleDegrees([]int{2, 3}, 2))
	assert.NoError(t, CheckSampleDegrees([]int{3, 5}, 1))
}
