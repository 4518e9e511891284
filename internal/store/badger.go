package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/dgraph-io/badger/v4"
	"github.com/kiranshivaraju/webgenie/pkg/models"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerStore implements Store on an embedded badgerhold database.
// Only one process may open a given directory.
type BadgerStore struct {
	db  *badgerhold.Store
	now func() time.Time
}

// OpenBadger opens (or creates) the database at dir. If the directory holds
// a database badger cannot read, it is moved aside to dir.corrupt-<unix>
// and an empty database is opened in its place.
func OpenBadger(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := openBadgerhold(dir)
	if err != nil {
		if isLockError(err) {
			return nil, fmt.Errorf("open badger database: %w", err)
		}

		aside := fmt.Sprintf("%s.corrupt-%d", strings.TrimRight(dir, string(os.PathSeparator)), time.Now().Unix())
		slog.Error("job database unreadable, starting empty",
			"path", dir,
			"moved_to", aside,
			"error", err,
		)
		if rerr := os.Rename(dir, aside); rerr != nil {
			return nil, fmt.Errorf("move corrupt database aside: %w", rerr)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		db, err = openBadgerhold(dir)
		if err != nil {
			return nil, fmt.Errorf("open badger database: %w", err)
		}
	}

	return &BadgerStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func openBadgerhold(dir string) (*badgerhold.Store, error) {
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil
	options.Encoder = json.Marshal
	options.Decoder = json.Unmarshal
	return badgerhold.Open(options)
}

func isLockError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "directory lock") || strings.Contains(msg, "another process")
}

func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.Badger().IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("create job: id is required")
	}
	if err := s.db.Insert(job.ID, *job); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *BadgerStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

func (s *BadgerStore) jobQuery(filter JobFilter) *badgerhold.Query {
	query := badgerhold.Where("ID").Ne("")
	if filter.Status != "" {
		query = query.And("Status").Eq(filter.Status)
	}
	if filter.DatasetID != "" {
		query = query.And("DatasetID").Eq(filter.DatasetID)
	}
	if filter.Algorithm != "" {
		query = query.And("Algorithm").Eq(filter.Algorithm)
	}
	return query
}

func (s *BadgerStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	filter = filter.normalize()

	// Queries carry paging state, so count and find each get a fresh one.
	total, err := s.db.Count(models.Job{}, s.jobQuery(filter))
	if err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := s.jobQuery(filter).SortBy("CreatedAt", "ID").Reverse().Skip(filter.Skip).Limit(filter.Limit)
	var rows []models.Job
	if err := s.db.Find(&rows, query); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*models.Job, len(rows))
	for i := range rows {
		jobs[i] = &rows[i]
	}
	return jobs, int(total), nil
}

// UpdateJobStatus reads, checks and writes the record in one badger
// transaction. Concurrent writers to the same job surface as
// badger.ErrConflict and are retried against the fresh state.
func (s *BadgerStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) (*models.Job, error) {
	var updated models.Job
	err := retry.Do(
		func() error {
			return s.db.Badger().Update(func(tx *badger.Txn) error {
				var job models.Job
				if err := s.db.TxGet(tx, id, &job); err != nil {
					if errors.Is(err, badgerhold.ErrNotFound) {
						return ErrNotFound
					}
					return err
				}
				if err := applyUpdate(&job, status, opts, s.now()); err != nil {
					return err
				}
				if err := s.db.TxUpdate(tx, id, job); err != nil {
					return err
				}
				updated = job
				return nil
			})
		},
		retry.Attempts(5),
		retry.Delay(5*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, badger.ErrConflict)
		}),
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrJobFinalized) || errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("update job status: %w", err)
	}
	return &updated, nil
}

func (s *BadgerStore) DeleteJob(ctx context.Context, id string) (bool, error) {
	if err := s.db.Delete(id, models.Job{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete job: %w", err)
	}
	return true, nil
}
