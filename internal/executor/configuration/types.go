package configuration

import (
	"github.com/armadaproject/elasticsched/internal/common/logging"
	schedulerconfig "github.com/armadaproject/elasticsched/internal/scheduler/configuration"
)

type ExecutorConfiguration struct {
	// host:port the scheduler's control connection is accepted on.
	ListenAddress string `validate:"required"`
	// Directory holding the per-query DAG descriptions, the same files the scheduler plans from.
	DagDirectory string `validate:"required"`
	// Bounds on the DAGs accepted from the directory. Zero leaves a bound unchecked.
	MaxStages   int `validate:"gte=0"`
	MaxInDegree int `validate:"gte=0,max=3"`
	// Upper bound on a local I/O phase when billing a task.
	IoChargeCapMs float64 `validate:"required,gt=0"`
	// Where task profiles are uploaded during profiling rounds.
	ProfileStore schedulerconfig.ProfileStoreConfig
	Simulation   SimulationConfig
	Metrics      schedulerconfig.MetricsConfig
	Logging      logging.Config
}

// SimulationConfig drives the in-process runner, which stands in for real query workers.
type SimulationConfig struct {
	// Wall clock time spent per simulated millisecond. Zero completes tasks immediately.
	TimeScale float64 `validate:"gte=0"`
	// Simulated milliseconds of work per unit of stage input, split across the tasks of the stage.
	MsPerInputUnit float64 `validate:"gt=0"`
	// Factor by which an I/O phase is faster when its edge stays in shared memory.
	ShmRatio float64 `validate:"gt=0"`
}
