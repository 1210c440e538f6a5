package dag

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidDag is returned when a DAG description cannot be parsed or describes an invalid graph.
// Line is zero for errors found after parsing.
type ErrInvalidDag struct {
	Line    int
	Message string
}

func (err *ErrInvalidDag) Error() string {
	if err.Line > 0 {
		return fmt.Sprintf("invalid dag description at line %d: %s", err.Line, err.Message)
	}
	return fmt.Sprintf("invalid dag: %s", err.Message)
}

func invalidAt(line int, format string, args ...interface{}) error {
	return errors.WithStack(&ErrInvalidDag{Line: line, Message: fmt.Sprintf(format, args...)})
}

// FileName returns the name of the description of query inside a DAG directory.
func FileName(queryID int) string {
	return fmt.Sprintf("q%d.dag", queryID)
}

// Load parses the description of query from dir.
func Load(dir string, queryID int) (*StageGraph, error) {
	path := filepath.Join(dir, FileName(queryID))
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	g, err := Parse(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing %s", path)
	}
	if g.QueryID != queryID {
		return nil, errors.WithStack(&ErrInvalidDag{Message: fmt.Sprintf("%s declares query %d", path, g.QueryID)})
	}
	return g, nil
}

// Parse reads a line oriented DAG description, e.g.
//
//	Query 95
//	Stage 1
//	is_leaf 1
//	input_chunks 40
//	to_id 3
//	transfer_op gather
//
// Keys other than Query and Stage apply to the most recently declared stage. Blank lines and lines
// starting with # are ignored. Unknown keys are an error. The returned graph is not validated.
func Parse(r io.Reader) (*StageGraph, error) {
	g := &StageGraph{Stages: []*StageNode{nil}}
	var cur *StageNode
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 || strings.HasPrefix(tokens[0], "#") {
			continue
		}
		key, values := tokens[0], tokens[1:]
		if key != "from_id" && len(values) != 1 {
			return nil, invalidAt(line, "%s expects exactly one value but got %d", key, len(values))
		}
		if key != "Query" && key != "Stage" && cur == nil {
			return nil, invalidAt(line, "%s appears before any stage", key)
		}
		var err error
		switch key {
		case "Query":
			g.QueryID, err = strconv.Atoi(values[0])
		case "Stage":
			cur = &StageNode{ToID: 0, ToOp: Gather}
			cur.ID, err = strconv.Atoi(values[0])
			g.Stages = append(g.Stages, cur)
		case "is_single":
			cur.IsSingle, err = parseFlag(values[0])
		case "is_leaf":
			cur.IsLeaf, err = parseFlag(values[0])
		case "input_chunks":
			cur.InputChunks, err = strconv.Atoi(values[0])
		case "to_id":
			cur.ToID, err = strconv.Atoi(values[0])
		case "transfer_op":
			cur.ToOp, err = ParseTransferOp(values[0])
		case "from_id":
			cur.FromIDs = make([]int, len(values))
			for i, v := range values {
				if cur.FromIDs[i], err = strconv.Atoi(v); err != nil {
					break
				}
			}
		case "pre_id":
			cur.PreID, err = strconv.Atoi(values[0])
		case "mem_parall":
			cur.Memory.Parallel, err = strconv.ParseFloat(values[0], 64)
		case "mem_fixed":
			cur.Memory.Fixed, err = strconv.ParseFloat(values[0], 64)
		case "input_size":
			cur.Memory.InputSize, err = strconv.ParseFloat(values[0], 64)
		default:
			return nil, invalidAt(line, "unknown key %q", key)
		}
		if err != nil {
			return nil, invalidAt(line, "bad value for %s: %s", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	for _, s := range g.Stages[1:] {
		if s.IsLeaf {
			g.LeafIDs = append(g.LeafIDs, s.ID)
		}
	}
	return g, nil
}

func parseFlag(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, errors.Errorf("expected 0 or 1 but got %q", s)
}
