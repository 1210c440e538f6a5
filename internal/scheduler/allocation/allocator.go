// Package allocation decides how many tasks every stage of a query runs with.
package allocation

import (
	"math"

	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
)

// Degrees maps stage id to degree of parallelism. Index 0 is unused.
type Degrees []int

// Sum returns the total degree of the stages that are not single.
func (d Degrees) Sum(g *dag.StageGraph) int {
	total := 0
	for _, id := range g.StageIDs() {
		if !g.Stage(id).IsSingle {
			total += d[id]
		}
	}
	return total
}

// Effective returns the degree the time of stage id is predicted at. A single stage runs one task but
// its time depends on how many tasks of its upstream feed it.
func (d Degrees) Effective(g *dag.StageGraph, id int) int {
	if s := g.Stage(id); s.IsSingle && len(s.FromIDs) > 0 {
		return d[s.FromIDs[0]]
	}
	return d[id]
}

// TotalSlots is the slot budget shared by the parallel stages: every slot in the cluster, except one
// reserved for each single stage.
func TotalSlots(g *dag.StageGraph, slots []int) int {
	total := 0
	for _, s := range slots {
		total += s
	}
	return total - g.NumSingle()
}

// ByCost gives each parallel stage a share of the budget proportional to the square root of its cost weight,
// which minimises the total memory-time product.
func ByCost(ctx *schedcontext.Context, g *dag.StageGraph, w *Weights, totalSlots int) Degrees {
	shares := make([]float64, len(g.Stages))
	for _, id := range g.StageIDs() {
		shares[id] = math.Sqrt(w.Cost[id])
	}
	degrees := distribute(g, shares, totalSlots)
	logAllocation(ctx, "cost", g, shares, degrees)
	return degrees
}

// ByJCT gives stages racing towards the same consumer degrees that make them finish together.
// r[i] is the time the subtree rooted at i takes when given the whole budget. Two workloads a and b
// sharing a budget finish together when it is split in the ratio √a:√b, and then together take
// (√a+√b)². Stages upstream of i see their share scaled down accordingly.
func ByJCT(ctx *schedcontext.Context, g *dag.StageGraph, w *Weights, totalSlots int) Degrees {
	r := make([]float64, len(g.Stages))
	ratios := make([]float64, len(g.Stages))
	scale := func(ids []int, f float64) {
		for _, id := range ids {
			ratios[id] *= f
		}
	}
	for _, id := range g.StageIDs() {
		s := g.Stage(id)
		tw := w.Time[id]
		switch {
		case s.IsLeaf:
			r[id] = tw
			ratios[id] = 1
		case s.IsSingle:
			child := s.FromIDs[0]
			r[id] = r[child]
			if ratios[child] > 0 {
				r[id] += tw / ratios[child]
			}
			ratios[id] = ratios[child]
		case len(s.FromIDs) == 1:
			var sf float64
			r[id], ratios[id], sf = race(r[s.FromIDs[0]], tw)
			scale(g.Ancestors(id), sf)
		default:
			total := 0.0
			for _, from := range s.FromIDs {
				total += r[from]
			}
			for _, from := range s.FromIDs {
				share := 1 / float64(len(s.FromIDs))
				if total > 0 {
					share = r[from] / total
				}
				scale(append([]int{from}, g.Ancestors(from)...), share)
			}
			var sf float64
			r[id], ratios[id], sf = race(total, tw)
			scale(g.Ancestors(id), sf)
		}
	}
	degrees := distribute(g, ratios, totalSlots)
	logAllocation(ctx, "jct", g, ratios, degrees)
	return degrees
}

// race combines an upstream subtree of weight upstream with a stage of weight own. It returns the
// combined weight, the fraction of the budget the stage gets and the factor upstream shares are scaled by.
func race(upstream, own float64) (float64, float64, float64) {
	cw, pw := math.Sqrt(upstream), math.Sqrt(own)
	if cw+pw == 0 {
		return 0, 0, 1
	}
	return (cw + pw) * (cw + pw), pw / (cw + pw), cw / (cw + pw)
}

// ByDataSize gives each parallel stage a share of the budget proportional to its input size.
func ByDataSize(ctx *schedcontext.Context, g *dag.StageGraph, totalSlots int) Degrees {
	shares := make([]float64, len(g.Stages))
	for _, id := range g.StageIDs() {
		shares[id] = g.Stage(id).Memory.InputSize
	}
	degrees := distribute(g, shares, totalSlots)
	logAllocation(ctx, "data size", g, shares, degrees)
	return degrees
}

// Uniform gives every parallel stage the same degree.
func Uniform(g *dag.StageGraph, degree int) Degrees {
	degrees := make(Degrees, len(g.Stages))
	for _, id := range g.StageIDs() {
		degrees[id] = degree
		if g.Stage(id).IsSingle {
			degrees[id] = 1
		}
	}
	return degrees
}

// distribute splits totalSlots across the parallel stages proportionally to shares, rounding down.
// Every stage gets at least one task and single stages exactly one.
func distribute(g *dag.StageGraph, shares []float64, totalSlots int) Degrees {
	total := 0.0
	for _, id := range g.StageIDs() {
		if !g.Stage(id).IsSingle {
			total += shares[id]
		}
	}
	degrees := make(Degrees, len(g.Stages))
	for _, id := range g.StageIDs() {
		degrees[id] = 1
		if g.Stage(id).IsSingle || total <= 0 {
			continue
		}
		if d := int(float64(totalSlots) * shares[id] / total); d > 1 {
			degrees[id] = d
		}
	}
	return degrees
}

func logAllocation(ctx *schedcontext.Context, objective string, g *dag.StageGraph, shares []float64, degrees Degrees) {
	for _, id := range g.StageIDs() {
		ctx.Log.Debugf("%s allocation: stage %d share %.4f degree %d", objective, id, shares[id], degrees[id])
	}
	ctx.Log.Infof("%s allocation assigns %d tasks to parallel stages", objective, degrees.Sum(g))
}
