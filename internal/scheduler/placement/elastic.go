package placement

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/scheduler/allocation"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/grouping"
)

// ErrPlacementRetry is returned when a group could not be placed. The group has been split and
// allocation should be redone for the new groups.
var ErrPlacementRetry = errors.New("group could not be placed and was split")

// Elastic places groups, largest total degree first. A multi-stage group is placed as task groups, one
// per task of its terminal stage, each holding the tasks of every member that feed that terminal task;
// a task group never spans executors. Singleton groups are placed task by task.
//
// If a multi-stage group cannot be placed its terminal stage is detached into a new singleton group and
// ErrPlacementRetry is returned along with the new groups. groups is sorted in place.
func Elastic(
	ctx *schedcontext.Context,
	g *dag.StageGraph,
	groups []*grouping.StageGroup,
	degrees allocation.Degrees,
	slots []int,
) (*Result, []*grouping.StageGroup, error) {
	for _, group := range groups {
		group.TotalDegree = 0
		for _, id := range group.StageIDs {
			group.TotalDegree += degrees[id]
		}
	}
	slices.SortStableFunc(groups, func(a, b *grouping.StageGroup) int {
		return b.TotalDegree - a.TotalDegree
	})

	n := len(slots)
	distri := newDistribution(g.NumStages(), n)
	placed := make([]int, n)
	oversubscribed := make([]int, n)

	for _, group := range groups {
		if group.Len() == 1 {
			continue
		}
		if err := placeTaskGroups(group, degrees, slots, placed, distri); err != nil {
			detached := grouping.Detach(group)
			ctx.Log.Infof("cannot place group %s: %s; retrying with stage %d detached", group, err, detached.StageIDs[0])
			return nil, append(groups, detached), ErrPlacementRetry
		}
	}
	for _, group := range groups {
		if group.Len() != 1 {
			continue
		}
		id := group.StageIDs[0]
		cur := -1
		for task := 0; task < degrees[id]; task++ {
			e, ok := nextWithCapacity(cur, 1, slots, placed)
			if !ok {
				// Tasks of different stages rarely overlap in time, so oversubscribing is preferred to failing.
				distri[id][0]++
				oversubscribed[0]++
				continue
			}
			cur = e
			placed[e]++
			distri[id][e]++
		}
	}
	if total := sum(oversubscribed); total > 0 {
		ctx.Log.Warnf("%d tasks placed on executor 0 beyond its capacity", total)
	}

	index := grouping.Index(g, groups)
	table := newTable(g, degrees, distri, n)
	plan := newExecutionPlan(g, table, func(from, to int) bool {
		group := index[from]
		if group != index[to] {
			return false
		}
		p := group.Position(to)
		return p > 0 && group.StageIDs[p-1] == from
	})
	return &Result{Table: table, Plan: plan, Placed: placed, Oversubscribed: oversubscribed}, groups, nil
}

func placeTaskGroups(group *grouping.StageGroup, degrees allocation.Degrees, slots, placed []int, distri distribution) error {
	numTaskGroups := degrees[group.Terminal()]
	if group.TotalDegree%numTaskGroups != 0 {
		return errors.Errorf("total degree %d does not split into %d task groups", group.TotalDegree, numTaskGroups)
	}
	tasksPerGroup := make([]int, group.Len())
	for j, id := range group.StageIDs {
		if degrees[id]%numTaskGroups != 0 {
			return errors.Errorf("degree %d of stage %d does not split into %d task groups", degrees[id], id, numTaskGroups)
		}
		tasksPerGroup[j] = degrees[id] / numTaskGroups
	}
	slotsPerGroup := group.TotalDegree / numTaskGroups

	// Placement is only committed once every task group fits.
	staged := make([]int, len(placed))
	copy(staged, placed)
	targets := make([]int, 0, numTaskGroups)
	cur := -1
	for i := 0; i < numTaskGroups; i++ {
		e, ok := nextWithCapacity(cur, slotsPerGroup, slots, staged)
		if !ok {
			return errors.Errorf("no executor has %d free slots for task group %d of %d", slotsPerGroup, i+1, numTaskGroups)
		}
		cur = e
		staged[e] += slotsPerGroup
		targets = append(targets, e)
	}
	copy(placed, staged)
	for _, e := range targets {
		for j, id := range group.StageIDs {
			distri[id][e] += tasksPerGroup[j]
		}
	}
	return nil
}

// nextWithCapacity returns the first executor after cur, cyclically, with room for need more slots.
func nextWithCapacity(cur, need int, slots, placed []int) (int, bool) {
	n := len(slots)
	for k := 0; k < n; k++ {
		cur = (cur + 1) % n
		if placed[cur]+need <= slots[cur] {
			return cur, true
		}
	}
	return 0, false
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
