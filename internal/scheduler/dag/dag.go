// Package dag holds the stage graph of a single query: stages, the edges between them and the
// memory and performance models attached to each stage.
package dag

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

// NoStage is the downstream id of the sink.
const NoStage = -1

// TransferOp describes how the output of a stage is mapped onto the tasks of its downstream stage.
type TransferOp int

const (
	// Gather sends the output of several upstream tasks to one downstream task.
	Gather TransferOp = iota
	// AllGather merges the output of every upstream task into every downstream task.
	AllGather
	// Broadcast copies the output of one task to every downstream task.
	Broadcast
	// Shuffle partitions the output of every upstream task across the downstream tasks.
	Shuffle
)

func (op TransferOp) String() string {
	switch op {
	case Gather:
		return "gather"
	case AllGather:
		return "allgather"
	case Broadcast:
		return "broadcast"
	case Shuffle:
		return "shuffle"
	}
	return fmt.Sprintf("TransferOp(%d)", int(op))
}

func ParseTransferOp(s string) (TransferOp, error) {
	switch strings.ToLower(s) {
	case "gather":
		return Gather, nil
	case "allgather":
		return AllGather, nil
	case "broadcast":
		return Broadcast, nil
	case "shuffle":
		return Shuffle, nil
	}
	return Gather, errors.Errorf("unknown transfer op %q", s)
}

// MemoryModel is the memory footprint of one task of a stage: a fixed part plus a part divided across tasks.
type MemoryModel struct {
	Parallel  float64
	Fixed     float64
	InputSize float64
}

// Footprint returns the memory held by each task when the stage runs with degree tasks.
func (m MemoryModel) Footprint(degree int) float64 {
	if degree <= 0 {
		degree = 1
	}
	return m.Fixed + m.Parallel/float64(degree)
}

type StageNode struct {
	ID int
	// Leaf stages read only from the raw dataset.
	IsLeaf bool
	// Single stages always run with exactly one task.
	IsSingle bool
	// Number of input chunks of a leaf. A leaf degree must divide it.
	InputChunks int
	ToID        int
	ToOp        TransferOp
	FromIDs     []int
	// The upstream stage whose output feeds the primary read path. Zero if unset.
	PreID  int
	Memory MemoryModel
	Model  *model.PerformanceModel
}

func (s *StageNode) IsSink() bool {
	return s.ToID == NoStage
}

// FromPosition returns the index of id in FromIDs, or -1.
func (s *StageNode) FromPosition(id int) int {
	for i, from := range s.FromIDs {
		if from == id {
			return i
		}
	}
	return -1
}

// StageGraph is the tree shaped DAG of one query. Stages are indexed by id, starting at 1.
type StageGraph struct {
	QueryID int
	// Stages[0] is always nil.
	Stages  []*StageNode
	LeafIDs []int
}

func (g *StageGraph) NumStages() int {
	if len(g.Stages) == 0 {
		return 0
	}
	return len(g.Stages) - 1
}

// Stage returns the stage with the given id, or nil if there is none.
func (g *StageGraph) Stage(id int) *StageNode {
	if id <= 0 || id >= len(g.Stages) {
		return nil
	}
	return g.Stages[id]
}

// StageIDs returns all stage ids in ascending order, which is a topological order.
func (g *StageGraph) StageIDs() []int {
	ids := make([]int, 0, g.NumStages())
	for id := 1; id <= g.NumStages(); id++ {
		ids = append(ids, id)
	}
	return ids
}

// SinkID returns the id of the stage without a downstream stage.
func (g *StageGraph) SinkID() int {
	for id := g.NumStages(); id >= 1; id-- {
		if g.Stages[id].IsSink() {
			return id
		}
	}
	return NoStage
}

// NumSingle returns the number of stages forced to a degree of one.
func (g *StageGraph) NumSingle() int {
	n := 0
	for _, id := range g.StageIDs() {
		if g.Stages[id].IsSingle {
			n++
		}
	}
	return n
}

// GatherParents returns the upstream stages of id that feed it through a gather edge.
func (g *StageGraph) GatherParents(id int) []int {
	var parents []int
	for _, from := range g.Stages[id].FromIDs {
		if g.Stages[from].ToOp == Gather {
			parents = append(parents, from)
		}
	}
	return parents
}

// Ancestors returns every stage upstream of id, transitively, in breadth first order.
func (g *StageGraph) Ancestors(id int) []int {
	var ancestors []int
	queue := append([]int(nil), g.Stages[id].FromIDs...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ancestors = append(ancestors, cur)
		queue = append(queue, g.Stages[cur].FromIDs...)
	}
	return ancestors
}

// PathToSink returns the stages visited when following downstream edges from id to the sink, id included.
func (g *StageGraph) PathToSink(id int) []int {
	var path []int
	for cur := id; cur != NoStage; cur = g.Stages[cur].ToID {
		path = append(path, cur)
	}
	return path
}
