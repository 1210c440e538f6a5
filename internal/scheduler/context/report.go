package context

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/olekukonko/tablewriter"
)

func (run *SchedulingRun) String() string {
	return run.ReportString(0)
}

// ReportString summarises the run. With verbosity above zero the per stage decisions are included.
func (run *SchedulingRun) ReportString(verbosity int32) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 1, 1, 1, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	fmt.Fprintf(w, "Query:\t%d\n", run.Graph.QueryID)
	fmt.Fprintf(w, "Algorithm:\t%s\n", run.Algorithm)
	fmt.Fprintf(w, "Mode:\t%s\n", run.Mode)
	fmt.Fprintf(w, "Duration:\t%s\n", run.Duration())
	fmt.Fprintf(w, "Total slots:\t%d\n", run.TotalSlots)
	fmt.Fprintf(w, "Allocated slots:\t%d\n", run.Degrees.Sum(run.Graph))
	fmt.Fprintf(w, "Placement attempts:\t%d\n", run.PlacementAttempts)
	fmt.Fprintf(w, "Groups:\t%v\n", run.Groups)
	fmt.Fprintf(w, "Predicted JCT:\t%.0fms\n", run.PredictedJCTMs)
	fmt.Fprintf(w, "Predicted cost:\t%.1f\n", run.PredictedCost)
	w.Flush()
	if verbosity > 0 {
		sb.WriteString("\n")
		run.writeStages(&sb)
	}
	if verbosity > 1 && run.Placement != nil {
		sb.WriteString("\n")
		run.writePlacement(&sb)
	}
	return sb.String()
}

func (run *SchedulingRun) writeStages(out io.Writer) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Stage", "Degree", "Mode", "Group", "Start (ms)"})
	modes := run.Modes()
	for _, id := range run.Graph.StageIDs() {
		row := []string{strconv.Itoa(id), strconv.Itoa(run.Degrees[id]), "", "", ""}
		if modes != nil {
			row[2] = modes[id].String()
		}
		for _, group := range run.Groups {
			if group.Position(id) >= 0 {
				row[3] = group.String()
			}
		}
		if offset, ok := run.Timeline.Offset(id); ok {
			row[4] = strconv.FormatInt(offset/1000, 10)
		}
		table.Append(row)
	}
	table.Render()
}

func (run *SchedulingRun) writePlacement(out io.Writer) {
	table := tablewriter.NewWriter(out)
	header := []string{"Stage"}
	for e := 0; e < run.NumExecutors(); e++ {
		header = append(header, fmt.Sprintf("Executor %d", e))
	}
	table.SetHeader(header)
	for _, id := range run.Graph.StageIDs() {
		row := []string{strconv.Itoa(id)}
		for _, local := range run.Placement.Table.LocalTasks(id) {
			row = append(row, strconv.Itoa(local))
		}
		table.Append(row)
	}
	footer := []string{"Used"}
	for e := 0; e < run.NumExecutors(); e++ {
		used := fmt.Sprintf("%d/%d", run.Placement.Placed[e], run.Slots[e])
		if over := run.Placement.Oversubscribed[e]; over > 0 {
			used += fmt.Sprintf(" +%d", over)
		}
		footer = append(footer, used)
	}
	table.SetFooter(footer)
	table.Render()
}
