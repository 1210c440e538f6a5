package profiling

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/scheduler/configuration"
	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

// ErrNotFound is returned by a Store when no profile was recorded under a key.
var ErrNotFound = errors.New("profile not found")

// Store persists per-task profiles. Executors write them at the end of a profiling round and the
// scheduler reads them back when aggregating.
type Store interface {
	Put(ctx context.Context, key string, p model.Profile) error
	Get(ctx context.Context, key string) (model.Profile, error)
}

// NewStore returns the store selected by config.
func NewStore(config configuration.ProfileStoreConfig) (Store, error) {
	switch config.Kind {
	case configuration.MemoryStore:
		return NewMemDbStore()
	case configuration.RedisStore:
		return NewRedisStore(redis.NewClient(config.Redis.AsOptions())), nil
	case configuration.S3Store:
		return NewS3StoreFromConfig(config.S3)
	}
	return nil, errors.Errorf("unknown profile store %q", config.Kind)
}
