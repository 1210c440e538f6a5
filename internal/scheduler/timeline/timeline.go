// Package timeline decides when each stage of a plan is launched, relative to the start of the query.
package timeline

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"github.com/armadaproject/elasticsched/internal/scheduler/allocation"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/grouping"
	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

type Entry struct {
	StageID int
	// Microseconds after the start of the query at which the stage is launched.
	OffsetMicros int64
}

func (e Entry) String() string {
	return fmt.Sprintf("stage %d at %dus", e.StageID, e.OffsetMicros)
}

// Timeline lists every stage once, ordered by offset and then by stage id.
type Timeline []Entry

// Offset returns the offset of stageID.
func (t Timeline) Offset(stageID int) (int64, bool) {
	for _, e := range t {
		if e.StageID == stageID {
			return e.OffsetMicros, true
		}
	}
	return 0, false
}

// Makespan returns the offset of the last stage to be launched.
func (t Timeline) Makespan() int64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].OffsetMicros
}

// builder holds the per-stage times, in whole milliseconds, a timeline is computed from.
type builder struct {
	g     *dag.StageGraph
	exec  []int64
	pre   []int64
	start []int64
}

func newBuilder(g *dag.StageGraph, degrees allocation.Degrees, mode func(id int) model.ExecMode) *builder {
	n := len(g.Stages)
	b := &builder{g: g, exec: make([]int64, n), pre: make([]int64, n), start: make([]int64, n)}
	for _, id := range g.StageIDs() {
		m := g.Stage(id).Model
		d := degrees.Effective(g, id)
		b.exec[id] = millis(m.PredictTime(mode(id), d))
		b.pre[id] = millis(m.PredictTime(model.Pre, d))
	}
	return b
}

// ready returns when the output of every upstream of s has been produced, shifted by less(from), along
// with the position of the upstream that finishes last, or -1.
func (b *builder) ready(s *dag.StageNode, less func(from int) int64) (int64, int) {
	latest, pos := int64(0), -1
	for j, from := range s.FromIDs {
		t := b.start[from] + b.exec[from] + b.pre[from] - less(from)
		if t > latest {
			latest, pos = t, j
		}
	}
	return latest, pos
}

func (b *builder) build() Timeline {
	t := make(Timeline, 0, b.g.NumStages())
	for _, id := range b.g.StageIDs() {
		t = append(t, Entry{StageID: id, OffsetMicros: b.start[id] * 1000})
	}
	slices.SortStableFunc(t, func(x, y Entry) int {
		switch {
		case x.OffsetMicros < y.OffsetMicros:
			return -1
		case x.OffsetMicros > y.OffsetMicros:
			return 1
		}
		return 0
	})
	return t
}

func noAdjustment(int) int64 { return 0 }

// Elastic launches every stage as soon as its slowest upstream is predicted to finish, minus its own
// preparation time. When a stage of a multi-stage group has several inputs, the gather upstreams other
// than the slowest are delayed so they finish just in time. An upstream in the same group as the stage
// may finish later still, by the stage's preparation time less slackMs, plus its first read when the
// upstream is not the first input, since that data is consumed from shared memory.
func Elastic(
	g *dag.StageGraph,
	degrees allocation.Degrees,
	modes []model.ExecMode,
	groups []*grouping.StageGroup,
	slackMs int64,
) Timeline {
	b := newBuilder(g, degrees, func(id int) model.ExecMode { return modes[id] })
	index := grouping.Index(g, groups)
	for _, id := range g.StageIDs() {
		s := g.Stage(id)
		if s.IsLeaf {
			continue
		}
		latest, critical := b.ready(s, noAdjustment)
		b.start[id] = max(latest-b.pre[id], 0)
		if len(s.FromIDs) < 2 || index[id].Len() < 2 {
			continue
		}
		d := degrees.Effective(g, id)
		for j, from := range s.FromIDs {
			if j == critical || g.Stage(from).ToOp != dag.Gather {
				continue
			}
			start := b.start[id] - b.exec[from] - b.pre[from]
			if index[from] == index[id] {
				start += int64(s.Model.PredictTime(model.Pre, d)) - slackMs
				if j > 0 {
					start += int64(s.Model.PredictTime(model.OnlyR1, d))
				}
			}
			b.start[from] = max(start, 0)
		}
	}
	return b.build()
}

// Naive launches every stage once its slowest upstream is predicted to finish, with every edge going
// through remote storage.
func Naive(g *dag.StageGraph, degrees allocation.Degrees) Timeline {
	b := newBuilder(g, degrees, func(int) model.ExecMode { return model.RCW })
	for _, id := range g.StageIDs() {
		s := g.Stage(id)
		if s.IsLeaf {
			continue
		}
		latest, _ := b.ready(s, noAdjustment)
		b.start[id] = max(latest-b.pre[id], 0)
	}
	return b.build()
}

// Greedy assumes every gather edge stays in shared memory. A gather upstream is ready once it has
// computed, since its write is consumed in place, and gather upstreams other than the slowest are
// delayed to finish slackMs before they are needed. Group membership is not taken into account.
func Greedy(g *dag.StageGraph, degrees allocation.Degrees, slackMs int64) Timeline {
	b := newBuilder(g, degrees, func(id int) model.ExecMode { return greedyMode(g, id) })
	writeTime := func(from int) int64 {
		upstream := g.Stage(from)
		if upstream.ToOp != dag.Gather {
			return 0
		}
		return int64(upstream.Model.PredictTime(model.OnlyWrite, degrees.Effective(g, from)))
	}
	for _, id := range g.StageIDs() {
		s := g.Stage(id)
		if s.IsLeaf {
			continue
		}
		latest, critical := b.ready(s, writeTime)
		b.start[id] = max(latest-b.pre[id], 0)
		if len(s.FromIDs) < 2 {
			continue
		}
		d := degrees.Effective(g, id)
		for j, from := range s.FromIDs {
			if j == critical || g.Stage(from).ToOp != dag.Gather {
				continue
			}
			start := b.start[id] - (b.exec[from] + b.pre[from] - writeTime(from))
			start += int64(s.Model.PredictTime(model.Pre, d)) - slackMs
			if j > 0 {
				start += int64(s.Model.PredictTime(model.OnlyR1, d))
			}
			b.start[from] = max(start, 0)
		}
	}
	return b.build()
}

// greedyMode is the mode a stage runs in when every gather edge is local. Leaves and stages without a
// gather input pay for every phase.
func greedyMode(g *dag.StageGraph, id int) model.ExecMode {
	s := g.Stage(id)
	if s.IsLeaf {
		return model.RCW
	}
	gatherPos := -1
	for j, from := range s.FromIDs {
		if g.Stage(from).ToOp == dag.Gather {
			gatherPos = j
		}
	}
	prePos := s.FromPosition(s.PreID)
	switch {
	case gatherPos == -1:
		return model.RCW
	case gatherPos == 0 || (gatherPos == 1 && prePos == 0):
		return model.R2CompWrite
	default:
		return model.R1CompWrite
	}
}

// GreedyModes returns the mode of every stage under Greedy, indexed by stage id.
func GreedyModes(g *dag.StageGraph) []model.ExecMode {
	modes := make([]model.ExecMode, len(g.Stages))
	for _, id := range g.StageIDs() {
		modes[id] = greedyMode(g, id)
	}
	return modes
}

// millis truncates a predicted time to whole milliseconds.
func millis(t float64) int64 {
	return int64(math.Abs(t))
}
