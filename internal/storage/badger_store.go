// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"arca/internal/vcserrors"
)

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// BadgerStore provides generic JSON entity storage under a key prefix.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), fmt.Sprintf("%s:", s.prefix))
}

// Put stores or replaces an entity inside an existing transaction. It is
// the building block for multi-record atomic writes (e.g. a commit record
// plus the repository index in one transaction).
func (s *BadgerStore) Put(txn *badger.Txn, entity Entity) error {
	if entity.GetID() == "" {
		return vcserrors.Validation("entity ID cannot be empty", nil)
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return vcserrors.Storage("marshaling entity", err)
	}

	return txn.Set(s.makeKey(entity.GetID()), data)
}

// Create stores a new entity, failing if the ID already exists.
func (s *BadgerStore) Create(entity Entity) error {
	key := s.makeKey(entity.GetID())
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return vcserrors.Storage(fmt.Sprintf("entity already exists: %s", entity.GetID()), nil)
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		return s.Put(txn, entity)
	})
}

func (s *BadgerStore) Get(id string, entity Entity) error {
	key := s.makeKey(id)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, entity); err != nil {
				return vcserrors.Storage(fmt.Sprintf("decoding entity %s", id), err)
			}
			return nil
		})
	})

	if err == badger.ErrKeyNotFound {
		return vcserrors.NotFound(fmt.Sprintf("entity not found: %s", id))
	}
	return err
}

// Exists reports whether an entity with the given ID is stored.
func (s *BadgerStore) Exists(id string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(s.makeKey(id))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *BadgerStore) Update(entity Entity) error {
	key := s.makeKey(entity.GetID())
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return vcserrors.NotFound(fmt.Sprintf("entity not found: %s", entity.GetID()))
		} else if err != nil {
			return err
		}

		return s.Put(txn, entity)
	})
}

func (s *BadgerStore) Delete(id string) error {
	key := s.makeKey(id)

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return vcserrors.NotFound(fmt.Sprintf("entity not found: %s", id))
		} else if err != nil {
			return err
		}

		return txn.Delete(key)
	})
}

// List unmarshals every entity under the prefix into results, which must
// be a pointer to a slice. Iteration order is key order, not insertion
// order; callers needing chronology keep their own index.
func (s *BadgerStore) List(results interface{}) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(s.prefix + ":")
		var values []json.RawMessage

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				values = append(values, val)
				return nil
			})
			if err != nil {
				return err
			}
		}

		data, err := json.Marshal(values)
		if err != nil {
			return err
		}

		return json.Unmarshal(data, results)
	})

	if err != nil {
		return vcserrors.Storage("listing entities", err)
	}
	return nil
}
