package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5. It is the
// backend to use when the API and standalone workers run as separate
// processes.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const jobColumns = `id, name, description, dataset_id, algorithm, parameters, status, progress,
	started_at, ended_at, error_message, error_kind, task_handle, result_path, log_file, metrics,
	created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j          models.Job
		status     string
		errorKind  string
		params     []byte
		metricsRaw []byte
	)
	if err := row.Scan(&j.ID, &j.Name, &j.Description, &j.DatasetID, &j.Algorithm, &params, &status,
		&j.Progress, &j.StartedAt, &j.EndedAt, &j.ErrorMessage, &errorKind, &j.TaskHandle,
		&j.ResultPath, &j.LogFile, &metricsRaw, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.ErrorKind = models.ErrorKind(errorKind)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &j.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
	}
	if len(metricsRaw) > 0 {
		var m models.NetworkStats
		if err := json.Unmarshal(metricsRaw, &m); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		j.Metrics = &m
	}
	return &j, nil
}

func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	params := job.Parameters
	if params == nil {
		params = map[string]any{}
	}
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	var metricsRaw []byte
	if job.Metrics != nil {
		if metricsRaw, err = encodeJSON(job.Metrics); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		job.ID, job.Name, job.Description, job.DatasetID, job.Algorithm, paramsRaw, string(job.Status),
		job.Progress, job.StartedAt, job.EndedAt, job.ErrorMessage, string(job.ErrorKind), job.TaskHandle,
		job.ResultPath, job.LogFile, metricsRaw, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	filter = filter.normalize()

	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.DatasetID != "" {
		conditions = append(conditions, fmt.Sprintf("dataset_id = $%d", argIdx))
		args = append(args, filter.DatasetID)
		argIdx++
	}
	if filter.Algorithm != "" {
		conditions = append(conditions, fmt.Sprintf("algorithm = $%d", argIdx))
		args = append(args, filter.Algorithm)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM jobs WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		jobColumns, where, argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Skip)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// UpdateJobStatus locks the row with SELECT ... FOR UPDATE so the
// read-check-write cannot interleave with another writer.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) (*models.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	job, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}

	if err := applyUpdate(job, status, opts, s.now()); err != nil {
		return nil, err
	}

	var metricsRaw []byte
	if job.Metrics != nil {
		if metricsRaw, err = encodeJSON(job.Metrics); err != nil {
			return nil, fmt.Errorf("encode metrics: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = $2, progress = $3, started_at = $4, ended_at = $5,
		   error_message = $6, error_kind = $7, task_handle = $8, metrics = $9, updated_at = $10
		 WHERE id = $1`,
		job.ID, string(job.Status), job.Progress, job.StartedAt, job.EndedAt,
		job.ErrorMessage, string(job.ErrorKind), job.TaskHandle, metricsRaw, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update job status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit job status: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
