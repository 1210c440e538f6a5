package allocation

import (
	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
)

// Refiner adjusts a raw allocation so that chained stages divide evenly into each other and the budget is
// used as fully as possible.
type Refiner struct {
	// A leaf is rounded up to the next divisor of its input chunks if fewer than this many tasks away.
	LeafRoundUpTolerance int
	// Multipliers tried, in order, when slots are left over.
	ExpansionFactors []int
}

// DefaultRefiner is used by the elastic algorithms.
var DefaultRefiner = Refiner{LeafRoundUpTolerance: 5, ExpansionFactors: []int{10, 4, 6, 3, 2}}

// BaselineRefiner always rounds leaves down and only ever doubles.
var BaselineRefiner = Refiner{LeafRoundUpTolerance: 0, ExpansionFactors: []int{2}}

// Refinement summarises the outcome of Refine.
type Refinement struct {
	TotalSlots int
	Allocated  int
}

// Unused is the number of budget slots left unallocated. It is negative when the budget is overcommitted.
func (r Refinement) Unused() int {
	return r.TotalSlots - r.Allocated
}

// Refine modifies degrees in place. Afterwards every degree is at least one, single stages have degree one,
// every leaf degree divides the leaf's input chunks and every stage fed through a gather edge has a degree
// dividing the degree of that upstream stage. The budget is only overcommitted when it cannot give every
// parallel stage a single task; that is reported, not treated as an error.
func (r Refiner) Refine(ctx *schedcontext.Context, g *dag.StageGraph, degrees Degrees, totalSlots int) Refinement {
	r.align(g, degrees)
	remain := totalSlots - degrees.Sum(g)
	ctx.Log.Debugf("aligned allocation uses %d of %d slots", degrees.Sum(g), totalSlots)
	if remain > 0 {
		r.expand(g, degrees, remain)
	} else if remain < 0 {
		r.shrink(g, degrees, remain)
	}
	revalidate(g, degrees)
	fit(g, degrees, totalSlots)

	result := Refinement{TotalSlots: totalSlots, Allocated: degrees.Sum(g)}
	if result.Unused() < 0 {
		ctx.Log.Warnf("allocation overcommits the budget of %d slots by %d", totalSlots, -result.Unused())
	} else {
		ctx.Log.Infof("refined allocation uses %d of %d slots", result.Allocated, totalSlots)
	}
	return result
}

func (r Refiner) align(g *dag.StageGraph, degrees Degrees) {
	for _, id := range g.StageIDs() {
		s := g.Stage(id)
		switch {
		case s.IsSingle:
			degrees[id] = 1
		case s.IsLeaf:
			degrees[id] = r.alignLeaf(degrees[id], s.InputChunks)
		default:
			parents := g.GatherParents(id)
			if len(parents) == 0 {
				degrees[id] = max(degrees[id], 1)
				continue
			}
			limit := parentGcd(degrees, parents)
			degrees[id] = smallestDivisorFrom(limit, min(max(degrees[id], 1), limit))
		}
	}
}

func (r Refiner) alignLeaf(degree, chunks int) int {
	cur := min(max(degree, 1), chunks)
	up, down := cur, cur
	for chunks%up != 0 {
		up++
	}
	for chunks%down != 0 {
		down--
	}
	if up-cur < r.LeafRoundUpTolerance {
		return up
	}
	return down
}

func (r Refiner) expand(g *dag.StageGraph, degrees Degrees, remain int) {
	for _, id := range g.StageIDs() {
		if remain <= 0 {
			return
		}
		s := g.Stage(id)
		d := degrees[id]
		if s.IsSingle || s.IsLeaf || d > remain {
			continue
		}
		parents := g.GatherParents(id)
		if len(parents) == 0 {
			continue
		}
		limit := parentGcd(degrees, parents)
		for _, k := range r.ExpansionFactors {
			if remain >= (k-1)*d && limit%(k*d) == 0 {
				remain -= (k - 1) * d
				degrees[id] = k * d
				break
			}
		}
	}
}

// shrink walks from the sink upwards. Halving may free more slots than needed; the surplus stays unused.
// Whatever deficit remains is left to fit.
func (r Refiner) shrink(g *dag.StageGraph, degrees Degrees, remain int) {
	for id := g.NumStages(); id >= 1; id-- {
		s := g.Stage(id)
		if s.IsSingle {
			continue
		}
		if s.IsLeaf {
			if degrees[id] >= 5 && degrees[id] <= 8 && s.InputChunks%2 == 0 {
				remain += degrees[id] - 2
				degrees[id] = 2
				if remain >= 0 {
					return
				}
			}
			continue
		}
		if remain >= 0 {
			return
		}
		if len(g.GatherParents(id)) > 0 && degrees[id]%2 == 0 {
			degrees[id] /= 2
			remain += degrees[id]
		}
	}
}

// revalidate restores gather divisibility broken by shrinking, only ever lowering degrees.
func revalidate(g *dag.StageGraph, degrees Degrees) {
	for _, id := range g.StageIDs() {
		s := g.Stage(id)
		if s.IsSingle {
			degrees[id] = 1
			continue
		}
		degrees[id] = max(degrees[id], 1)
		if s.IsLeaf {
			continue
		}
		parents := g.GatherParents(id)
		if len(parents) == 0 {
			continue
		}
		limit := parentGcd(degrees, parents)
		if limit%degrees[id] != 0 {
			degrees[id] = largestDivisorUpTo(limit, degrees[id])
		}
	}
}

// fit steps degrees down one valid value at a time until they fit the budget or every stage is at one.
// Each step takes the largest reduction that does not overshoot, or the smallest one when all do.
func fit(g *dag.StageGraph, degrees Degrees, totalSlots int) {
	for {
		sum := degrees.Sum(g)
		over := sum - totalSlots
		if over <= 0 {
			return
		}
		var best Degrees
		bestFreed := 0
		for _, id := range g.StageIDs() {
			next, ok := stepDown(g, degrees, id)
			if !ok {
				continue
			}
			freed := sum - next.Sum(g)
			if best == nil || betterStep(freed, bestFreed, over) {
				best, bestFreed = next, freed
			}
		}
		if best == nil {
			return
		}
		copy(degrees, best)
	}
}

func betterStep(freed, current, over int) bool {
	switch {
	case freed <= over && current <= over:
		return freed > current
	case freed <= over:
		return true
	case current <= over:
		return false
	default:
		return freed < current
	}
}

// stepDown returns a copy of degrees with stage id lowered to its next smaller valid degree.
func stepDown(g *dag.StageGraph, degrees Degrees, id int) (Degrees, bool) {
	s := g.Stage(id)
	d := degrees[id]
	if s.IsSingle || d <= 1 {
		return nil, false
	}
	next := append(Degrees(nil), degrees...)
	parents := g.GatherParents(id)
	switch {
	case s.IsLeaf:
		next[id] = largestDivisorUpTo(s.InputChunks, d-1)
	case len(parents) > 0:
		next[id] = largestDivisorUpTo(parentGcd(degrees, parents), d-1)
	default:
		next[id] = d - 1
	}
	revalidate(g, next)
	return next, true
}

func parentGcd(degrees Degrees, parents []int) int {
	result := 0
	for _, p := range parents {
		result = gcd(result, degrees[p])
	}
	return max(result, 1)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func smallestDivisorFrom(n, from int) int {
	d := max(from, 1)
	for n%d != 0 {
		d++
	}
	return d
}

func largestDivisorUpTo(n, upTo int) int {
	d := min(upTo, n)
	for d > 1 && n%d != 0 {
		d--
	}
	return max(d, 1)
}
