package profiling

import (
	"bytes"
	"context"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

type RedisStore struct {
	db redis.UniversalClient
}

func NewRedisStore(db redis.UniversalClient) *RedisStore {
	return &RedisStore{db: db}
}

func (r *RedisStore) Put(_ context.Context, key string, p model.Profile) error {
	var buf bytes.Buffer
	if err := WriteProfile(&buf, p); err != nil {
		return err
	}
	if err := r.db.Set(key, buf.Bytes(), 0).Err(); err != nil {
		return errors.Wrapf(err, "storing profile %s", key)
	}
	return nil
}

func (r *RedisStore) Get(_ context.Context, key string) (model.Profile, error) {
	body, err := r.db.Get(key).Bytes()
	if err == redis.Nil {
		return model.Profile{}, errors.Wrap(ErrNotFound, key)
	} else if err != nil {
		return model.Profile{}, errors.Wrapf(err, "fetching profile %s", key)
	}
	p, err := ReadProfile(bytes.NewReader(body))
	return p, errors.WithMessagef(err, "parsing profile %s", key)
}
