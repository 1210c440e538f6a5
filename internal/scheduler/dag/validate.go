package dag

import (
	"fmt"

	"github.com/pkg/errors"
)

// Limits bound the size of a graph.
type Limits struct {
	MaxStages   int
	MaxInDegree int
}

// Validate checks that g is a tree shaped DAG whose ids are 1..n in topological order, with a single
// sink and consistent edges, and that it fits within limits.
func (g *StageGraph) Validate(limits Limits) error {
	n := g.NumStages()
	if n == 0 {
		return invalid("no stages")
	}
	if limits.MaxStages > 0 && n > limits.MaxStages {
		return invalid("%d stages exceeds the maximum of %d", n, limits.MaxStages)
	}
	sinks := 0
	for id := 1; id <= n; id++ {
		s := g.Stages[id]
		if s.ID != id {
			return invalid("stage %d declared in position %d; stage ids must be 1..n in order", s.ID, id)
		}
		if err := g.validateStage(s, limits); err != nil {
			return err
		}
		if s.IsSink() {
			sinks++
		}
	}
	if sinks != 1 {
		return invalid("expected exactly one sink but found %d", sinks)
	}
	return nil
}

func (g *StageGraph) validateStage(s *StageNode, limits Limits) error {
	n := g.NumStages()
	if !s.IsSink() {
		if s.ToID <= s.ID || s.ToID > n {
			return invalid("stage %d has downstream %d; downstream ids must be greater and at most %d", s.ID, s.ToID, n)
		}
		if g.Stages[s.ToID].FromPosition(s.ID) < 0 {
			return invalid("stage %d sends to %d but %d does not list it as an upstream", s.ID, s.ToID, s.ToID)
		}
	}
	if s.IsLeaf {
		if len(s.FromIDs) > 0 {
			return invalid("leaf stage %d has upstream stages", s.ID)
		}
		if s.InputChunks <= 0 {
			return invalid("leaf stage %d has %d input chunks", s.ID, s.InputChunks)
		}
		if s.IsSingle {
			return invalid("leaf stage %d cannot be single", s.ID)
		}
		return nil
	}
	if len(s.FromIDs) == 0 {
		return invalid("non-leaf stage %d has no upstream stages", s.ID)
	}
	if limits.MaxInDegree > 0 && len(s.FromIDs) > limits.MaxInDegree {
		return invalid("stage %d has %d upstream stages; at most %d are supported", s.ID, len(s.FromIDs), limits.MaxInDegree)
	}
	seen := make(map[int]bool, len(s.FromIDs))
	for _, from := range s.FromIDs {
		if from <= 0 || from >= s.ID {
			return invalid("stage %d has upstream %d; upstream ids must be positive and smaller", s.ID, from)
		}
		if seen[from] {
			return invalid("stage %d lists upstream %d twice", s.ID, from)
		}
		seen[from] = true
		if g.Stages[from].ToID != s.ID {
			return invalid("stage %d lists upstream %d but %d sends to %d", s.ID, from, from, g.Stages[from].ToID)
		}
	}
	if s.PreID != 0 && s.FromPosition(s.PreID) < 0 {
		return invalid("stage %d has pre_id %d which is not one of its upstream stages", s.ID, s.PreID)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.WithStack(&ErrInvalidDag{Message: fmt.Sprintf(format, args...)})
}
