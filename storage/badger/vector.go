package badger

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
// Entries live under key prefixes derived from (userID, contentType), so
// user isolation is structural rather than filter-based.
type VectorRepository struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) *VectorRepository {
	return &VectorRepository{
		backend: backend,
		logger:  slog.Default().With("component", "vector-repository"),
	}
}

// Close is a no-op; the shared backend is closed by its owner.
func (r *VectorRepository) Close() error {
	return nil
}

// AddEntries writes entries into the caller's collection. Writes are
// best-effort per entry: a failed entry is logged and skipped, the rest
// still land. Returns the stored count and the first error encountered.
func (r *VectorRepository) AddEntries(ctx context.Context, userID string, ct core.ContentType, entries ...*core.VectorEntry) (int, error) {
	var stored int
	var firstErr error

	for _, entry := range entries {
		if err := core.ValidateVectorEntry(entry); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			r.logger.Warn("skipping invalid vector entry", "err", err)
			continue
		}
		if entry.InsertedAt.IsZero() {
			entry.InsertedAt = time.Now().UTC()
		}

		key := makeVectorEntryKey(userID, ct, entry.Id)
		value := storage.MarshalVectorEntry(entry)
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			return tx.Set(key, value)
		}, true)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			r.logger.Error("error storing vector entry", "entry", entry.Id, "err", err)
			continue
		}
		stored++
	}

	return stored, firstErr
}

// FindSimilar ranks the caller's entries by cosine similarity to vector
// (dot product; stored vectors are normalized). Only keys under the
// caller's collection prefix are visited, so another user's entries can
// never appear in the results.
func (r *VectorRepository) FindSimilar(ctx context.Context, userID string, ct core.ContentType, vector []float32, sessionID string, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult

	prefix := makeCollectionPrefix(userID, ct)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()

			var entry *core.VectorEntry
			err := item.Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalVectorEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			if entry == nil || len(entry.Vector) == 0 {
				continue
			}
			if sessionID != "" && entry.SessionId != sessionID {
				continue
			}

			results = append(results, &core.SearchResult{
				Entry: entry,
				Score: dotProduct(vector, entry.Vector),
			})
		}

		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// DeleteSession removes entries matching the given session from the user's
// collection. A missing collection yields (0, nil), not an error.
func (r *VectorRepository) DeleteSession(ctx context.Context, userID string, ct core.ContentType, sessionID string) (int, error) {
	var deleted int

	prefix := makeCollectionPrefix(userID, ct)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)

		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			var entry *core.VectorEntry
			err := item.Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalVectorEntry(val)
				return err
			})
			if err != nil {
				iter.Close()
				return err
			}
			if entry != nil && entry.SessionId == sessionID {
				keys = append(keys, item.KeyCopy(nil))
			}
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return nil
	}, true)

	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// DeleteUserCollection drops every entry in one of the user's collections.
func (r *VectorRepository) DeleteUserCollection(ctx context.Context, userID string, ct core.ContentType) error {
	prefix := makeCollectionPrefix(userID, ct)
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
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
		return nil
	}, true)
}

// UserHasData reports whether any of the user's collections contain entries.
func (r *VectorRepository) UserHasData(ctx context.Context, userID string) (bool, error) {
	hasData := false

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, ct := range []core.ContentType{core.ContentTypeText, core.ContentTypeImage} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = makeCollectionPrefix(userID, ct)
			opts.PrefetchValues = false
			iter := tx.NewIterator(opts)
			iter.Rewind()
			valid := iter.Valid()
			iter.Close()
			if valid {
				hasData = true
				return nil
			}
		}
		return nil
	}, false)

	return hasData, err
}

// ListCollections returns info for the user's non-empty collections.
func (r *VectorRepository) ListCollections(ctx context.Context, userID string) ([]storage.CollectionInfo, error) {
	var infos []storage.CollectionInfo

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, ct := range []core.ContentType{core.ContentTypeText, core.ContentTypeImage} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = makeCollectionPrefix(userID, ct)
			opts.PrefetchValues = false
			iter := tx.NewIterator(opts)

			count := 0
			for iter.Rewind(); iter.Valid(); iter.Next() {
				count++
			}
			iter.Close()

			if count > 0 {
				infos = append(infos, storage.CollectionInfo{
					Name:        core.CollectionName(userID, ct),
					ContentType: ct,
					EntryCount:  count,
				})
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}
	return infos, nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
