package dag

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeStageDag = `
Query 7
# leaf
Stage 1
is_leaf 1
input_chunks 40
to_id 2
transfer_op gather
mem_parall 400
mem_fixed 10
input_size 1000

Stage 2
is_single 1
from_id 1
pre_id 1
to_id 3
transfer_op shuffle

Stage 3
from_id 2
to_id -1
`

const joinDag = `
Query 95
Stage 1
is_leaf 1
input_chunks 20
to_id 3
transfer_op gather
Stage 2
is_leaf 1
input_chunks 12
to_id 3
transfer_op gather
Stage 3
from_id 1 2
pre_id 2
to_id 4
transfer_op shuffle
Stage 4
from_id 3
to_id -1
`

func mustParse(t *testing.T, s string) *StageGraph {
	g, err := Parse(strings.NewReader(s))
	require.NoError(t, err)
	return g
}

func TestParse(t *testing.T) {
	g := mustParse(t, threeStageDag)
	assert.Equal(t, 7, g.QueryID)
	assert.Equal(t, 3, g.NumStages())
	assert.Equal(t, []int{1}, g.LeafIDs)

	leaf := g.Stage(1)
	assert.True(t, leaf.IsLeaf)
	assert.Equal(t, 40, leaf.InputChunks)
	assert.Equal(t, 2, leaf.ToID)
	assert.Equal(t, Gather, leaf.ToOp)
	assert.Equal(t, MemoryModel{Parallel: 400, Fixed: 10, InputSize: 1000}, leaf.Memory)

	single := g.Stage(2)
	assert.True(t, single.IsSingle)
	assert.Equal(t, []int{1}, single.FromIDs)
	assert.Equal(t, 1, single.PreID)
	assert.Equal(t, Shuffle, single.ToOp)

	assert.True(t, g.Stage(3).IsSink())
	assert.Equal(t, 3, g.SinkID())
	assert.Equal(t, 1, g.NumSingle())
	assert.NoError(t, g.Validate(Limits{MaxStages: 12, MaxInDegree: 3}))
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]struct {
		input string
		line  int
	}{
		"unknown key": {
			input: "Query 1\nStage 1\nfoo 1\n",
			line:  3,
		},
		"key before stage": {
			input: "Query 1\nis_leaf 1\n",
			line:  2,
		},
		"bad integer": {
			input: "Stage x\n",
			line:  1,
		},
		"bad flag": {
			input: "Stage 1\nis_leaf yes\n",
			line:  2,
		},
		"bad transfer op": {
			input: "Stage 1\n\ntransfer_op scatter\n",
			line:  3,
		},
		"missing value": {
			input: "Stage 1\nto_id\n",
			line:  2,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.input))
			var dagErr *ErrInvalidDag
			require.True(t, errors.As(err, &dagErr), "expected ErrInvalidDag but got %v", err)
			assert.Equal(t, tc.line, dagErr.Line)
		})
	}
}

func TestValidate(t *testing.T) {
	limits := Limits{MaxStages: 12, MaxInDegree: 3}
	tests := map[string]struct {
		input  string
		limits Limits
		valid  bool
	}{
		"three stages": {
			input:  threeStageDag,
			limits: limits,
			valid:  true,
		},
		"join": {
			input:  joinDag,
			limits: limits,
			valid:  true,
		},
		"too many stages": {
			input:  joinDag,
			limits: Limits{MaxStages: 3, MaxInDegree: 3},
		},
		"in degree exceeded": {
			input:  joinDag,
			limits: Limits{MaxStages: 12, MaxInDegree: 1},
		},
		"empty": {
			input:  "Query 1\n",
			limits: limits,
		},
		"ids out of order": {
			input:  "Stage 2\nfrom_id 1\nto_id -1\nStage 1\nis_leaf 1\ninput_chunks 2\nto_id 2\n",
			limits: limits,
		},
		"two sinks": {
			input:  "Stage 1\nis_leaf 1\ninput_chunks 2\nto_id -1\nStage 2\nis_leaf 1\ninput_chunks 2\nto_id -1\n",
			limits: limits,
		},
		"edge to lower id": {
			input:  "Stage 1\nfrom_id 2\nto_id -1\nStage 2\nis_leaf 1\ninput_chunks 2\nto_id 1\n",
			limits: limits,
		},
		"leaf without chunks": {
			input:  "Stage 1\nis_leaf 1\nto_id 2\nStage 2\nfrom_id 1\nto_id -1\n",
			limits: limits,
		},
		"interior without upstream": {
			input:  "Stage 1\nto_id -1\n",
			limits: limits,
		},
		"inconsistent edge": {
			input:  "Stage 1\nis_leaf 1\ninput_chunks 2\nto_id 3\nStage 2\nfrom_id 1\nto_id 3\nStage 3\nfrom_id 2\nto_id -1\n",
			limits: limits,
		},
		"pre id not upstream": {
			input:  "Stage 1\nis_leaf 1\ninput_chunks 2\nto_id 2\nStage 2\nfrom_id 1\npre_id 3\nto_id -1\n",
			limits: limits,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			g := mustParse(t, tc.input)
			err := g.Validate(tc.limits)
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			var dagErr *ErrInvalidDag
			assert.True(t, errors.As(err, &dagErr), "expected ErrInvalidDag but got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(95)), []byte(joinDag), 0o644))

	g, err := Load(dir, 95)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, g.LeafIDs)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(94)), []byte(joinDag), 0o644))
	_, err = Load(dir, 94)
	assert.Error(t, err)

	_, err = Load(dir, 1)
	assert.Error(t, err)
}

func TestGraphTraversal(t *testing.T) {
	g := mustParse(t, joinDag)
	assert.Equal(t, []int{1, 2}, g.GatherParents(3))
	assert.Empty(t, g.GatherParents(4))
	assert.Equal(t, []int{3, 1, 2}, g.Ancestors(4))
	assert.Equal(t, []int{2, 3, 4}, g.PathToSink(2))
	assert.Equal(t, 1, g.Stage(3).FromPosition(2))
	assert.Equal(t, -1, g.Stage(3).FromPosition(4))
	assert.Nil(t, g.Stage(5))
	assert.Equal(t, []int{1, 2, 3, 4}, g.StageIDs())
}

func TestFootprint(t *testing.T) {
	m := MemoryModel{Parallel: 100, Fixed: 5}
	assert.Equal(t, 30.0, m.Footprint(4))
	assert.Equal(t, 105.0, m.Footprint(0))
}
