// Package badger stores the audit chain in an embedded BadgerDB. Keys are the
// big-endian sequence under a fixed prefix, so key order is chain order.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	audit "custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
)

var prefix = []byte("audit/entry/")

// Store implements audit.Store on a BadgerDB instance.
type Store struct {
	db *badger.DB
}

// New creates a store on an open database.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

func key(sequence uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], sequence)
	return k
}

// Append writes one entry. An existing sequence is a conflict.
func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	k := key(entry.Sequence)
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		switch {
		case err == nil:
			return fmt.Errorf("audit entry %d: %w", entry.Sequence, sentinel.ErrConflict)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(k, value)
	})
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// List returns every entry in sequence order.
func (s *Store) List(ctx context.Context) ([]audit.Entry, error) {
	entries := []audit.Entry{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry audit.Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("decode audit entry: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// Put overwrites a stored entry without any checks. Only for exercising
// verification against a corrupted store.
func (s *Store) Put(entry audit.Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(entry.Sequence), value)
	})
}
