package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
// Terminal jobs additionally get a finished-at index entry so the queue can
// trim its audit window with a single ordered scan.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) *JobRepository {
	return &JobRepository{backend: backend}
}

// Close is a no-op; the shared backend is closed by its owner.
func (r *JobRepository) Close() error {
	return nil
}

// PutJob writes the job state, maintaining the terminal index.
func (r *JobRepository) PutJob(ctx context.Context, job *core.Job) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		if job.Status.Terminal() && !job.FinishedAt.IsZero() {
			return tx.Set(makeJobTerminalKey(job.FinishedAt, job.Id), []byte(job.Id))
		}
		return nil
	}, true)
}

// GetJob retrieves a job by id.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.Job, error) {
	var job *core.Job

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeJobKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			job, err = storage.UnmarshalJob(val)
			return err
		})
	}, false)

	if err != nil {
		return nil, err
	}
	return job, nil
}

// DeleteJob removes a job and, when terminal, its finished-at index entry.
func (r *JobRepository) DeleteJob(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeJobKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		var job *core.Job
		err = item.Value(func(val []byte) error {
			job, err = storage.UnmarshalJob(val)
			return err
		})
		if err != nil {
			return err
		}

		if err := tx.Delete(makeJobKey(id)); err != nil {
			return err
		}
		if job.Status.Terminal() && !job.FinishedAt.IsZero() {
			return tx.Delete(makeJobTerminalKey(job.FinishedAt, id))
		}
		return nil
	}, true)
}

// JobsByStatus returns all jobs currently in the given status.
func (r *JobRepository) JobsByStatus(ctx context.Context, status core.JobStatus) ([]*core.Job, error) {
	var jobs []*core.Job

	err := r.forEachJob(func(job *core.Job) {
		if job.Status == status {
			jobs = append(jobs, job)
		}
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs per status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[core.JobStatus]int, error) {
	counts := make(map[core.JobStatus]int)

	err := r.forEachJob(func(job *core.Job) {
		counts[job.Status]++
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// EvictTerminal deletes the oldest terminal jobs beyond keep, together with
// their index entries. Returns the number of jobs evicted.
func (r *JobRepository) EvictTerminal(ctx context.Context, keep int) (int, error) {
	var evicted int

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobTerminalPrefix + ":")
		iter := tx.NewIterator(opts)

		// Oldest first: the index key embeds the BigEndian finished-at time.
		type indexed struct {
			indexKey []byte
			jobID    string
		}
		var all []indexed
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			var jobID string
			err := item.Value(func(val []byte) error {
				jobID = string(val)
				return nil
			})
			if err != nil {
				iter.Close()
				return err
			}
			all = append(all, indexed{indexKey: item.KeyCopy(nil), jobID: jobID})
		}
		iter.Close()

		if len(all) <= keep {
			return nil
		}

		for _, idx := range all[:len(all)-keep] {
			if err := tx.Delete(idx.indexKey); err != nil {
				return err
			}
			if err := tx.Delete(makeJobKey(idx.jobID)); err != nil {
				return err
			}
			evicted++
		}
		return nil
	}, true)

	if err != nil {
		return 0, err
	}
	return evicted, nil
}

func (r *JobRepository) forEachJob(fn func(job *core.Job)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var job *core.Job
			err := iter.Item().Value(func(val []byte) error {
				var err error
				job, err = storage.UnmarshalJob(val)
				return err
			})
			if err != nil {
				return err
			}
			if job != nil {
				fn(job)
			}
		}
		return nil
	}, false)
}
