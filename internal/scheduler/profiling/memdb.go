package profiling

import (
	"context"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

const (
	profilesTable = "profiles"
	idIndex       = "id"
)

type profileRecord struct {
	Key     string
	Profile model.Profile
}

// MemDbStore keeps profiles in memory. It only serves executors and schedulers in the same process.
type MemDbStore struct {
	db *memdb.MemDB
}

func NewMemDbStore() (*MemDbStore, error) {
	db, err := memdb.NewMemDB(profilesSchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MemDbStore{db: db}, nil
}

func (m *MemDbStore) Put(_ context.Context, key string, p model.Profile) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(profilesTable, &profileRecord{Key: key, Profile: p}); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func (m *MemDbStore) Get(_ context.Context, key string) (model.Profile, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(profilesTable, idIndex, key)
	if err != nil {
		return model.Profile{}, errors.WithStack(err)
	}
	if raw == nil {
		return model.Profile{}, errors.Wrap(ErrNotFound, key)
	}
	return raw.(*profileRecord).Profile, nil
}

func profilesSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			profilesTable: {
				Name: profilesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	}
}
