package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// incrementRetries bounds optimistic-transaction retries on counter
// contention before the caller's fail-open path takes over.
const incrementRetries = 8

// BadgerStore is a badger-backed Store with native per-entry TTL.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a badger database at dir. An empty
// dir runs badger fully in memory.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Badger's transactional API does not take a context, so the deadline
// from the caller's per-op budget is honored at transaction boundaries:
// before starting one and between increment retries.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var next int64
	k := []byte(key)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			var cur int64
			remaining := ttl

			item, err := txn.Get(k)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				// first increment starts the TTL clock
			case err != nil:
				return err
			default:
				if err := item.Value(func(val []byte) error {
					if len(val) == 8 {
						cur = int64(binary.BigEndian.Uint64(val))
					}
					return nil
				}); err != nil {
					return err
				}
				// preserve the original expiry across increments
				if exp := item.ExpiresAt(); exp > 0 {
					remaining = time.Until(time.Unix(int64(exp), 0))
					if remaining <= 0 {
						cur = 0
						remaining = ttl
					}
				}
			}

			next = cur + 1
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(next))
			e := badger.NewEntry(k, buf)
			if remaining > 0 {
				e = e.WithTTL(remaining)
			}
			return txn.SetEntry(e)
		})
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, badger.ErrConflict) || attempt >= incrementRetries {
			return 0, fmt.Errorf("increment %s: %w", key, err)
		}
	}
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
