package allocation

import (
	"math"

	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/grouping"
	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

// Weights holds, per stage id, the execution mode a stage is predicted with and the weights derived from it.
type Weights struct {
	Modes []model.ExecMode
	// Coefficient of 1/d in the predicted execution time.
	Time []float64
	// Memory weighted time, used by the cost objective.
	Cost []float64
}

func newWeights(g *dag.StageGraph) *Weights {
	n := len(g.Stages)
	return &Weights{
		Modes: make([]model.ExecMode, n),
		Time:  make([]float64, n),
		Cost:  make([]float64, n),
	}
}

func (w *Weights) set(s *dag.StageNode, mode model.ExecMode) {
	w.Modes[s.ID] = mode
	w.Time[s.ID] = math.Abs(s.Model.PredictPartialFactor(mode))
	pre := math.Abs(s.Model.PredictPartialFactor(model.Pre))
	w.Cost[s.ID] = s.Memory.Parallel * (w.Time[s.ID] + pre)
}

// SetWeights picks the execution mode of every stage from its position in its group. A singleton pays
// for every phase. The first stage of a chain writes to shared memory, so its write is free. Later
// stages read the input coming from the previous stage of the chain from shared memory, and only the
// terminal stage pays for its write.
func SetWeights(g *dag.StageGraph, groups []*grouping.StageGroup) *Weights {
	w := newWeights(g)
	for _, group := range groups {
		if group.Len() == 1 {
			w.set(g.Stage(group.StageIDs[0]), model.RCW)
			continue
		}
		for j, id := range group.StageIDs {
			s := g.Stage(id)
			if j == 0 {
				w.set(s, model.ReadComp)
				continue
			}
			last := j == group.Len()-1
			posChild := s.FromPosition(group.StageIDs[j-1])
			posPre := s.FromPosition(s.PreID)
			// The stage reading its primary input from shared memory pays only for the other read.
			if posChild == 0 || (posChild == 1 && posPre == 0) {
				if last {
					w.set(s, model.R2CompWrite)
				} else {
					w.set(s, model.R2Comp)
				}
			} else {
				if last {
					w.set(s, model.R1CompWrite)
				} else {
					w.set(s, model.R1Comp)
				}
			}
		}
	}
	return w
}

// OptimalWeights assumes every edge that can stay in shared memory does. It is used for lower bounds.
func OptimalWeights(g *dag.StageGraph) *Weights {
	w := newWeights(g)
	sink := g.SinkID()
	for _, id := range g.StageIDs() {
		s := g.Stage(id)
		switch {
		case id == sink:
			w.set(s, model.CompWrite)
		case s.IsSingle:
			w.set(s, model.RCW)
		case s.IsLeaf:
			w.set(s, model.ReadComp)
		case g.Stage(s.ToID).IsSingle:
			w.set(s, model.CompWrite)
		default:
			single := -1
			for j, from := range s.FromIDs {
				if g.Stage(from).IsSingle {
					single = j
					break
				}
			}
			switch single {
			case -1:
				w.set(s, model.OptComp)
			case 0:
				w.set(s, model.R1Comp)
			default:
				w.set(s, model.R2Comp)
			}
		}
	}
	return w
}
