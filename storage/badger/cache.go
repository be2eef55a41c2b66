package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

// CacheStore implements storage.CacheStore for BadgerDB.
// Entries are written with a BadgerDB TTL, so expiry needs no sweeper.
type CacheStore struct {
	backend *Backend
}

var _ storage.CacheStore = (*CacheStore)(nil)

// NewCacheStore creates a new CacheStore.
func NewCacheStore(backend *Backend) *CacheStore {
	return &CacheStore{backend: backend}
}

// GetEmbedding looks up a memoized embedding by cache key.
func (s *CacheStore) GetEmbedding(ctx context.Context, key string) (*core.CacheEntry, bool, error) {
	var entry *core.CacheEntry

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCacheKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			entry, err = storage.UnmarshalCacheEntry(val)
			return err
		})
	}, false)

	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry, true, nil
}

// SetEmbedding stores an embedding under its cache key with the given TTL.
func (s *CacheStore) SetEmbedding(ctx context.Context, entry *core.CacheEntry, ttl time.Duration) error {
	value := storage.MarshalCacheEntry(entry)
	e := badger.NewEntry(makeCacheKey(entry.Key), value).WithTTL(ttl)
	return s.backend.SetEntry(e)
}

// Count returns the number of live cache entries.
func (s *CacheStore) Count(ctx context.Context) (int, error) {
	count := 0

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(cacheEntryPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)

	if err != nil {
		return 0, err
	}
	return count, nil
}

// Clear removes all cache entries and returns how many were removed.
func (s *CacheStore) Clear(ctx context.Context) (int, error) {
	var cleared int

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(cacheEntryPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)

		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		cleared = len(keys)
		return nil
	}, true)

	if err != nil {
		return 0, err
	}
	return cleared, nil
}
