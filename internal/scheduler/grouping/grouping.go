package grouping

import (
	"fmt"

	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
)

// StageGroup is a chain of gather-linked stages that run back to back on the same executors.
// StageIDs are ordered from upstream to downstream.
type StageGroup struct {
	StageIDs    []int
	TotalDegree int
}

func (g *StageGroup) Len() int {
	return len(g.StageIDs)
}

// Terminal returns the most downstream stage of the group.
func (g *StageGroup) Terminal() int {
	return g.StageIDs[len(g.StageIDs)-1]
}

// Position returns the index of id in the group, or -1.
func (g *StageGroup) Position(id int) int {
	for i, s := range g.StageIDs {
		if s == id {
			return i
		}
	}
	return -1
}

func (g *StageGroup) String() string {
	return fmt.Sprintf("%v", g.StageIDs)
}

// Singleton puts every stage in its own group.
func Singleton(graph *dag.StageGraph) []*StageGroup {
	groups := make([]*StageGroup, 0, graph.NumStages())
	for _, id := range graph.StageIDs() {
		groups = append(groups, &StageGroup{StageIDs: []int{id}})
	}
	return groups
}

// Bundle walks forward from every ungrouped stage, in ascending id order, while the downstream edge is a
// gather and the group holds fewer than maxPerGroup stages. The stage reached by the last gather edge
// joins the group if there is room. Every stage ends up in exactly one group.
func Bundle(graph *dag.StageGraph, maxPerGroup int) []*StageGroup {
	grouped := make([]bool, len(graph.Stages))
	var groups []*StageGroup
	for _, id := range graph.StageIDs() {
		if grouped[id] {
			continue
		}
		var ids []int
		cur := id
		for len(ids) < maxPerGroup && !grouped[cur] {
			s := graph.Stage(cur)
			if s.IsSink() || s.ToOp != dag.Gather {
				break
			}
			ids = append(ids, cur)
			grouped[cur] = true
			cur = s.ToID
		}
		if len(ids) == 0 {
			ids = append(ids, id)
			grouped[id] = true
		} else if len(ids) < maxPerGroup && !grouped[cur] {
			ids = append(ids, cur)
			grouped[cur] = true
		}
		groups = append(groups, &StageGroup{StageIDs: ids})
	}
	return groups
}

// Detach removes the terminal stage from group and returns it as a new singleton group.
func Detach(group *StageGroup) *StageGroup {
	last := group.Terminal()
	group.StageIDs = group.StageIDs[:len(group.StageIDs)-1]
	return &StageGroup{StageIDs: []int{last}}
}

// Index maps each stage id to the group holding it.
func Index(graph *dag.StageGraph, groups []*StageGroup) []*StageGroup {
	index := make([]*StageGroup, len(graph.Stages))
	for _, group := range groups {
		for _, id := range group.StageIDs {
			index[id] = group
		}
	}
	return index
}
