package executor

// Cost is the memory-time product billed for results: every task is charged its execution time, with
// shared memory I/O capped at ioCapMs, times the memory footprint of its stage at its degree. Time is
// converted from milliseconds to seconds.
func Cost(results []TaskResult, ioCapMs float64) float64 {
	total := 0.0
	for _, r := range results {
		charge := r.Profile.ChargeTime(r.Tasks.From[0].IsLocal(), r.Tasks.From[1].IsLocal(), r.Tasks.To.IsLocal(), ioCapMs)
		total += charge * r.Stage.Memory.Footprint(int(r.Tasks.Current.NumTasks)) / 1000
	}
	return total
}
