package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Recordings live under "rec:<identifier>" as JSON.
const recordingPrefix = "rec:"

// Badger is the default Store, backed by an embedded Badger database.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger catalog in dir.
func OpenBadger(dir string) (*Badger, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger catalog requires a directory")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

func (s *Badger) Close() error { return s.db.Close() }

func (s *Badger) Create(ctx context.Context, rec Recording) error {
	return create(ctx, s, rec)
}

func (s *Badger) Write(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(badgerTx{txn: txn})
	})
}

func (s *Badger) Retrieve(ctx context.Context, filter Filter) ([]Recording, error) {
	var out []Recording
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordingPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Recording
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if matches(filter, rec) {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Badger) Get(ctx context.Context, identifier string) (Recording, error) {
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}
	var out Recording
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = badgerTx{txn: txn}.Get(identifier)
		return err
	})
	return out, err
}

func (s *Badger) Delete(ctx context.Context, identifiers ...string) error {
	return remove(ctx, s, identifiers)
}

type badgerTx struct {
	txn *badger.Txn
}

func recordingKey(identifier string) []byte {
	return []byte(recordingPrefix + identifier)
}

func (tx badgerTx) Create(rec Recording) error {
	if err := rec.validate(); err != nil {
		return err
	}
	key := recordingKey(rec.Identifier)
	if _, err := tx.txn.Get(key); err == nil {
		return ErrDuplicate
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.txn.Set(key, buf)
}

func (tx badgerTx) Get(identifier string) (Recording, error) {
	var out Recording
	item, err := tx.txn.Get(recordingKey(identifier))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &out)
	})
	return out, err
}

func (tx badgerTx) Delete(identifier string) error {
	return tx.txn.Delete(recordingKey(identifier))
}
