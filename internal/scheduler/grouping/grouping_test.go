package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/testfixtures"
)

func stageIDs(groups []*StageGroup) [][]int {
	ids := make([][]int, len(groups))
	for i, g := range groups {
		ids[i] = g.StageIDs
	}
	return ids
}

func TestBundle(t *testing.T) {
	tests := map[string]struct {
		graph       *dag.StageGraph
		maxPerGroup int
		expected    [][]int
	}{
		"gather chain of three": {
			graph:       testfixtures.GatherChain(40, dag.Gather, dag.Gather),
			maxPerGroup: 3,
			expected:    [][]int{{1, 2, 3}},
		},
		"chain broken by shuffle": {
			graph:       testfixtures.GatherChain(40, dag.Gather, dag.Shuffle),
			maxPerGroup: 3,
			expected:    [][]int{{1, 2}, {3}},
		},
		"shuffle first": {
			graph:       testfixtures.GatherChain(40, dag.Shuffle, dag.Gather),
			maxPerGroup: 3,
			expected:    [][]int{{1}, {2, 3}},
		},
		"long chain is capped": {
			graph:       testfixtures.GatherChain(40, dag.Gather, dag.Gather, dag.Gather, dag.Gather),
			maxPerGroup: 3,
			expected:    [][]int{{1, 2, 3}, {4, 5}},
		},
		"group size two": {
			graph:       testfixtures.GatherChain(40, dag.Gather, dag.Gather, dag.Gather),
			maxPerGroup: 2,
			expected:    [][]int{{1, 2}, {3, 4}},
		},
		"all shuffle": {
			graph:       testfixtures.GatherChain(40, dag.Shuffle, dag.AllGather, dag.Broadcast),
			maxPerGroup: 3,
			expected:    [][]int{{1}, {2}, {3}, {4}},
		},
		"join": {
			graph:       testfixtures.JoinGraph(),
			maxPerGroup: 3,
			expected:    [][]int{{1, 3, 4}, {2}, {5}, {6, 7, 8}},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			groups := Bundle(tc.graph, tc.maxPerGroup)
			assert.Equal(t, tc.expected, stageIDs(groups))
			assertPartition(t, tc.graph, groups)
		})
	}
}

func TestSingleton(t *testing.T) {
	g := testfixtures.JoinGraph()
	groups := Singleton(g)
	require.Len(t, groups, g.NumStages())
	assertPartition(t, g, groups)
	for _, group := range groups {
		assert.Equal(t, 1, group.Len())
	}
}

func TestDetach(t *testing.T) {
	group := &StageGroup{StageIDs: []int{1, 3, 4}}
	detached := Detach(group)
	assert.Equal(t, []int{1, 3}, group.StageIDs)
	assert.Equal(t, []int{4}, detached.StageIDs)
	assert.Equal(t, 3, group.Terminal())
	assert.Equal(t, 1, group.Position(3))
	assert.Equal(t, -1, group.Position(4))
}

func TestIndex(t *testing.T) {
	g := testfixtures.JoinGraph()
	groups := Bundle(g, 3)
	index := Index(g, groups)
	assert.Same(t, groups[0], index[3])
	assert.Same(t, groups[3], index[8])
	assert.Nil(t, index[0])
}

func assertPartition(t *testing.T, g *dag.StageGraph, groups []*StageGroup) {
	seen := make(map[int]int)
	for _, group := range groups {
		for _, id := range group.StageIDs {
			seen[id]++
		}
	}
	for _, id := range g.StageIDs() {
		assert.Equal(t, 1, seen[id], "stage %d", id)
	}
	assert.Len(t, seen, g.NumStages())
}
