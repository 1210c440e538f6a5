package testfixtures

// This file contains test fixtures to be used throughout the tests for the scheduler packages.
import (
	"github.com/armadaproject/elasticsched/internal/scheduler/configuration"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

const (
	TestQueryID  = 95
	TestShmRatio = model.DefaultShmRatio
)

var TestSampleDegrees = []int{2, 4, 6, 12}

// TestSchedulingConfig mirrors the defaults shipped in config/scheduler/config.yaml.
func TestSchedulingConfig(algorithm configuration.Algorithm) configuration.SchedulingConfig {
	return configuration.SchedulingConfig{
		Mode:                 configuration.JCT,
		Algorithm:            algorithm,
		ShmRatio:             TestShmRatio,
		MaxStages:            64,
		MaxExecutors:         16,
		MaxStagesPerGroup:    3,
		MaxInDegree:          3,
		LeafRoundUpTolerance: 5,
		ExpansionFactors:     []int{10, 4, 6, 3, 2},
		ColocatedSlackMs:     configuration.ColocatedSlack{Jct: 6000, Cost: 1500},
		GreedySlackMs:        3000,
		LaunchOverheadMs:     1500,
		BaseDegree:           4,
		IoChargeCapMs:        1000,
		MaxPlacementAttempts: 10,
	}
}

// NewGraph returns a graph of stages, which must be given in id order.
func NewGraph(queryID int, stages ...*dag.StageNode) *dag.StageGraph {
	g := &dag.StageGraph{QueryID: queryID, Stages: append([]*dag.StageNode{nil}, stages...)}
	for _, s := range stages {
		if s.IsLeaf {
			g.LeafIDs = append(g.LeafIDs, s.ID)
		}
	}
	return g
}

func Leaf(id, chunks, to int, op dag.TransferOp) *dag.StageNode {
	return &dag.StageNode{
		ID:          id,
		IsLeaf:      true,
		InputChunks: chunks,
		ToID:        to,
		ToOp:        op,
		Memory:      dag.MemoryModel{Parallel: 4000, Fixed: 100, InputSize: float64(chunks) * 100},
	}
}

func Interior(id, to int, op dag.TransferOp, from ...int) *dag.StageNode {
	s := &dag.StageNode{
		ID:      id,
		ToID:    to,
		ToOp:    op,
		FromIDs: from,
		Memory:  dag.MemoryModel{Parallel: 2000, Fixed: 100, InputSize: 1000},
	}
	if len(from) > 0 {
		s.PreID = from[len(from)-1]
	}
	return s
}

func Single(id, to int, op dag.TransferOp, from int) *dag.StageNode {
	s := Interior(id, to, op, from)
	s.IsSingle = true
	s.Memory = dag.MemoryModel{Fixed: 500, InputSize: 10}
	return s
}

// WithModels attaches DefaultModel to every stage of g, scaled by the stage id so that stages differ.
func WithModels(g *dag.StageGraph) *dag.StageGraph {
	for _, s := range g.Stages[1:] {
		s.Model = DefaultModel(float64(s.ID), len(s.FromIDs) > 1)
	}
	return g
}

// DefaultModel returns a model in which a task at degree 10 spends a few seconds per phase.
func DefaultModel(scale float64, twoInputs bool) *model.PerformanceModel {
	m := &model.PerformanceModel{
		Pre:      model.Curve{A: 2000 * scale, B: 100},
		Read1:    model.Curve{A: 20000 * scale, B: 200},
		Comp:     model.Curve{A: 40000 * scale, B: 300},
		Write:    model.Curve{A: 10000 * scale, B: 200},
		ShmRatio: TestShmRatio,
	}
	if twoInputs {
		m.Read2 = model.Curve{A: 10000 * scale, B: 100}
	}
	return m
}

// ThreeStageGraph is a leaf with 40 input chunks feeding a single stage feeding the sink.
func ThreeStageGraph() *dag.StageGraph {
	return WithModels(NewGraph(
		TestQueryID,
		Leaf(1, 40, 2, dag.Gather),
		Single(2, 3, dag.Shuffle, 1),
		Interior(3, dag.NoStage, dag.Gather, 2),
	))
}

// GatherChain is a chain of n stages in which every edge is ops[i], starting from a leaf with chunks inputs.
func GatherChain(chunks int, ops ...dag.TransferOp) *dag.StageGraph {
	n := len(ops) + 1
	stages := []*dag.StageNode{Leaf(1, chunks, 2, ops[0])}
	for id := 2; id <= n; id++ {
		to, op := id+1, dag.Gather
		if id == n {
			to = dag.NoStage
		} else {
			op = ops[id-1]
		}
		stages = append(stages, Interior(id, to, op, id-1))
	}
	return WithModels(NewGraph(TestQueryID, stages...))
}

// JoinGraph is shaped like a TPC-DS join query: two joins fed by three scans, followed by two single
// stages that merge and write the result.
//
//	1 ─┐
//	   ├─ 3 ── 4 ─┐
//	2 ─┘          ├─ 6 ── 7 ── 8
//	         5 ───┘
func JoinGraph() *dag.StageGraph {
	return WithModels(NewGraph(
		TestQueryID,
		Leaf(1, 60, 3, dag.Gather),
		Leaf(2, 40, 3, dag.Gather),
		Interior(3, 4, dag.Gather, 1, 2),
		Interior(4, 6, dag.Gather, 3),
		Leaf(5, 20, 6, dag.Shuffle),
		Interior(6, 7, dag.Gather, 4, 5),
		Single(7, 8, dag.Gather, 6),
		Single(8, dag.NoStage, dag.Gather, 7),
	))
}

// Slots returns n executors with slots slots each.
func Slots(n, slots int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = slots
	}
	return s
}

// Degrees builds a degree allocation from stage id/degree pairs.
func Degrees(g *dag.StageGraph, pairs ...int) []int {
	degrees := make([]int, len(g.Stages))
	for i := 0; i+1 < len(pairs); i += 2 {
		degrees[pairs[i]] = pairs[i+1]
	}
	return degrees
}
