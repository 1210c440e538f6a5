package configuration

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/common/config"
	"github.com/armadaproject/elasticsched/internal/common/logging"
)

// SchedulingMode selects the objective the degree allocator optimises for.
type SchedulingMode int

const (
	// JCT minimises job completion time.
	JCT SchedulingMode = iota
	// Cost minimises the memory-time product billed for the job.
	Cost
)

func (m SchedulingMode) String() string {
	switch m {
	case JCT:
		return "jct"
	case Cost:
		return "cost"
	}
	return "unknown"
}

func ParseSchedulingMode(s string) (SchedulingMode, error) {
	switch strings.ToLower(s) {
	case "jct":
		return JCT, nil
	case "cost":
		return Cost, nil
	}
	return JCT, errors.Errorf("unknown scheduling mode %q", s)
}

// Algorithm names one end-to-end scheduling pipeline.
type Algorithm string

const (
	// Elastic bundles gather chains, allocates by the configured objective and pipelines stage launches.
	Elastic Algorithm = "elastic"
	// ElasticSingleton is Elastic with every stage in its own group.
	ElasticSingleton Algorithm = "elastic-singleton"
	// DataSize allocates degrees proportionally to input size and places them by executor slot share.
	DataSize Algorithm = "datasize"
	// Uniform gives every stage BaseDegree tasks, spread by executor slot share, with all edges remote.
	Uniform Algorithm = "uniform"
	// Greedy is Uniform but keeps gather edges in shared memory and delays non-critical branches.
	Greedy Algorithm = "greedy"
)

var algorithms = []Algorithm{Elastic, ElasticSingleton, DataSize, Uniform, Greedy}

func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range algorithms {
		if string(a) == strings.ToLower(s) {
			return a, nil
		}
	}
	return "", errors.Errorf("unknown algorithm %q", s)
}

// StoreKind selects where per-task profiles are persisted.
type StoreKind string

const (
	MemoryStore StoreKind = "memory"
	RedisStore  StoreKind = "redis"
	S3Store     StoreKind = "s3"
)

func ParseStoreKind(s string) (StoreKind, error) {
	switch k := StoreKind(strings.ToLower(s)); k {
	case MemoryStore, RedisStore, S3Store:
		return k, nil
	}
	return "", errors.Errorf("unknown profile store %q", s)
}

// DecodeHooks returns the hooks needed to decode the enums in this package from config files.
func DecodeHooks() []mapstructure.DecodeHookFunc {
	return []mapstructure.DecodeHookFunc{
		config.EnumDecodeHook(ParseSchedulingMode),
		config.EnumDecodeHook(ParseAlgorithm),
		config.EnumDecodeHook(ParseStoreKind),
	}
}

type Configuration struct {
	// Directory holding the per-query DAG descriptions, named q<query>.dag.
	DagDirectory string `validate:"required"`
	// Executors the plan is dispatched to. Index in this list is the executor id.
	Executors  []ExecutorConfig `validate:"required,min=1,dive"`
	Scheduling SchedulingConfig
	Profiling  ProfilingConfig
	Dispatch   DispatchConfig
	Metrics    MetricsConfig
	Logging    logging.Config
}

func (c Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterStructValidation(SchedulingConfigValidation, SchedulingConfig{})
	if err := validate.Struct(c); err != nil {
		return err
	}
	if len(c.Executors) > c.Scheduling.MaxExecutors {
		return errors.Errorf("%d executors configured but at most %d are supported", len(c.Executors), c.Scheduling.MaxExecutors)
	}
	if c.Profiling.Servers > len(c.Executors) {
		return errors.Errorf("profiling needs %d servers but only %d executors are configured", c.Profiling.Servers, len(c.Executors))
	}
	return nil
}

// Slots returns the per-executor slot counts in executor id order.
func (c Configuration) Slots() []int {
	slots := make([]int, len(c.Executors))
	for i, e := range c.Executors {
		slots[i] = e.Slots
	}
	return slots
}

type ExecutorConfig struct {
	// host:port the executor listens on for the control connection.
	Address string `validate:"required"`
	// Number of task slots (cpu cores) available on the executor.
	Slots int `validate:"required,gt=0"`
}

type SchedulingConfig struct {
	Mode      SchedulingMode
	Algorithm Algorithm `validate:"required"`
	// Factor by which a phase is discounted when its edge stays in shared memory.
	ShmRatio float64 `validate:"required,gt=0"`
	// Limits the DAG and cluster are validated against.
	MaxStages         int `validate:"required,gt=0"`
	MaxExecutors      int `validate:"required,gt=0"`
	MaxStagesPerGroup int `validate:"required,gt=0,max=3"`
	MaxInDegree       int `validate:"required,gt=0"`
	// A leaf degree is rounded up to the next divisor of its input chunks if that is at most this far away.
	LeafRoundUpTolerance int `validate:"gte=0"`
	// Multipliers tried, in order, when spare slots remain after alignment.
	ExpansionFactors []int `validate:"required,dive,gt=1"`
	// How much earlier than strictly necessary a delayed co-located branch is launched.
	ColocatedSlackMs ColocatedSlack
	// Slack used by the greedy timeline when delaying non-critical gather branches.
	GreedySlackMs int64 `validate:"gte=0"`
	// Per-task launch overhead of non-leaf stages, used by cost estimates.
	LaunchOverheadMs float64 `validate:"gte=0"`
	// Degree given to every parallel stage by the uniform and greedy baselines.
	BaseDegree int `validate:"required,gt=0"`
	// Upper bound on a local I/O phase when billing a task.
	IoChargeCapMs float64 `validate:"required,gt=0"`
	// Upper bound on placement attempts before giving up.
	MaxPlacementAttempts int `validate:"required,gt=0"`
}

type ColocatedSlack struct {
	Jct  int64 `validate:"gte=0"`
	Cost int64 `validate:"gte=0"`
}

// For returns the slack applied in the given mode.
func (s ColocatedSlack) For(mode SchedulingMode) int64 {
	if mode == JCT {
		return s.Jct
	}
	return s.Cost
}

func SchedulingConfigValidation(sl validator.StructLevel) {
	c := sl.Current().Interface().(SchedulingConfig)
	if c.MaxInDegree > 3 {
		sl.ReportError(c.MaxInDegree, "MaxInDegree", "MaxInDegree", "lte", "3")
	}
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		sl.ReportError(c.Algorithm, "Algorithm", "Algorithm", "oneof", "")
	}
}

type ProfilingConfig struct {
	// Degrees every stage is sampled at. At least two distinct values are needed to fit a model.
	SampleDegrees []int `validate:"required,min=2,dive,gt=0"`
	// Number of executors (taken from the front of Executors) used for profiling rounds.
	Servers int `validate:"required,gt=0"`
	Store   ProfileStoreConfig
	// Directory holding the averaged per-stage profiles written by aggregation and read when planning.
	Directory string `validate:"required"`
}

// ProfileStoreConfig selects where per-task profiles are persisted. Executors write to the same store the
// scheduler aggregates from, so both applications carry it.
type ProfileStoreConfig struct {
	Kind  StoreKind `validate:"required"`
	Redis config.RedisConfig
	S3    S3Config
}

type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	// Use path style addressing, needed by most S3 compatible stores.
	ForcePathStyle bool
}

type DispatchConfig struct {
	// How often the dispatch loop checks whether the next stage is due.
	PollInterval time.Duration `validate:"required"`
	DialTimeout  time.Duration `validate:"required"`
	// Executors may still be starting, so each is dialled up to this many times.
	DialAttempts uint `validate:"required,gt=0"`
}

type MetricsConfig struct {
	// If zero, metrics are not served.
	Port uint16
}
