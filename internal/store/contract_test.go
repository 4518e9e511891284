package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/webgenie/internal/store"
	"github.com/kiranshivaraju/webgenie/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newJob(id string, status models.JobStatus, created time.Time) *models.Job {
	return &models.Job{
		ID:         id,
		Name:       "genie3 on ds-1",
		DatasetID:  "ds-1",
		Algorithm:  "genie3",
		Parameters: map[string]any{"n_trees": float64(1000)},
		Status:     status,
		ResultPath: "/data/results/" + id,
		LogFile:    "/data/results/" + id + "/execution.log",
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

// running creates a SUBMITTED job and moves it to RUNNING with a handle.
func running(t *testing.T, s store.Store, id string) *models.Job {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob(id, models.JobStatusSubmitted, baseTime)))
	job, err := s.UpdateJobStatus(ctx, id, models.JobStatusRunning, store.WithTaskHandle("task-"+id))
	require.NoError(t, err)
	return job
}

// testStoreContract runs the behaviour every Store backend must share.
func testStoreContract(t *testing.T, open func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := open(t)
		desc := "first run"
		job := newJob("job-aaaaaaaaaaaa", models.JobStatusSubmitted, baseTime)
		job.Description = &desc
		job.Parameters = map[string]any{"n_trees": float64(500), "method": "pearson"}
		require.NoError(t, s.CreateJob(ctx, job))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, job.Name, got.Name)
		require.NotNil(t, got.Description)
		assert.Equal(t, desc, *got.Description)
		assert.Equal(t, models.JobStatusSubmitted, got.Status)
		assert.Equal(t, job.Parameters, got.Parameters)
		assert.Equal(t, job.ResultPath, got.ResultPath)
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.EndedAt)
		assert.Nil(t, got.TaskHandle)
		assert.WithinDuration(t, baseTime, got.CreatedAt, time.Millisecond)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		s := open(t)
		job := newJob("job-dup", models.JobStatusSubmitted, baseTime)
		require.NoError(t, s.CreateJob(ctx, job))
		assert.ErrorIs(t, s.CreateJob(ctx, job), store.ErrDuplicateKey)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		_, err := s.GetJob(ctx, "job-missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("RunningStampsStartedAt", func(t *testing.T) {
		s := open(t)
		job := running(t, s, "job-run")
		assert.Equal(t, models.JobStatusRunning, job.Status)
		require.NotNil(t, job.StartedAt)
		require.NotNil(t, job.TaskHandle)
		assert.Equal(t, "task-job-run", *job.TaskHandle)
		assert.Nil(t, job.EndedAt)

		got, err := s.GetJob(ctx, "job-run")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusRunning, got.Status)
		assert.NotNil(t, got.StartedAt)
	})

	t.Run("RunningRequiresTaskHandle", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateJob(ctx, newJob("job-nohandle", models.JobStatusSubmitted, baseTime)))
		_, err := s.UpdateJobStatus(ctx, "job-nohandle", models.JobStatusRunning)
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	})

	t.Run("ProgressIsClamped", func(t *testing.T) {
		s := open(t)
		running(t, s, "job-progress")
		job, err := s.UpdateJobStatus(ctx, "job-progress", models.JobStatusRunning, store.WithProgress(150))
		require.NoError(t, err)
		assert.Equal(t, 100.0, job.Progress)

		job, err = s.UpdateJobStatus(ctx, "job-progress", models.JobStatusRunning, store.WithProgress(-3))
		require.NoError(t, err)
		assert.Equal(t, 0.0, job.Progress)
	})

	t.Run("TerminalStampsEndedAtAndMetrics", func(t *testing.T) {
		s := open(t)
		running(t, s, "job-done")
		job, err := s.UpdateJobStatus(ctx, "job-done", models.JobStatusCompleted,
			store.WithProgress(100),
			store.WithMetrics(models.NetworkStats{NumEdges: 12, NumNodes: 5, OutputFile: "genie3_network.tsv"}))
		require.NoError(t, err)
		require.NotNil(t, job.EndedAt)

		got, err := s.GetJob(ctx, "job-done")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		require.NotNil(t, got.EndedAt)
		require.NotNil(t, got.Metrics)
		assert.Equal(t, 12, got.Metrics.NumEdges)
		assert.Equal(t, 5, got.Metrics.NumNodes)
	})

	t.Run("FailedRecordsErrorKind", func(t *testing.T) {
		s := open(t)
		running(t, s, "job-fail")
		_, err := s.UpdateJobStatus(ctx, "job-fail", models.JobStatusFailed,
			store.WithErrorMessage("algorithm exited with code 137"),
			store.WithErrorKind(models.ErrorKindExitCode))
		require.NoError(t, err)

		got, err := s.GetJob(ctx, "job-fail")
		require.NoError(t, err)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "algorithm exited with code 137", *got.ErrorMessage)
		assert.Equal(t, models.ErrorKindExitCode, got.ErrorKind)
	})

	t.Run("CancelNeverOverwritesTerminal", func(t *testing.T) {
		s := open(t)
		running(t, s, "job-final")
		_, err := s.UpdateJobStatus(ctx, "job-final", models.JobStatusCompleted, store.WithProgress(100))
		require.NoError(t, err)

		_, err = s.UpdateJobStatus(ctx, "job-final", models.JobStatusCancelled)
		assert.ErrorIs(t, err, store.ErrJobFinalized)
		_, err = s.UpdateJobStatus(ctx, "job-final", models.JobStatusFailed, store.WithErrorMessage("late"))
		assert.ErrorIs(t, err, store.ErrJobFinalized)

		got, err := s.GetJob(ctx, "job-final")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		assert.Nil(t, got.ErrorMessage)
	})

	t.Run("ExpectedStatusGuard", func(t *testing.T) {
		s := open(t)
		running(t, s, "job-guard")
		_, err := s.UpdateJobStatus(ctx, "job-guard", models.JobStatusRunning,
			store.WithExpectedStatus(models.JobStatusSubmitted))
		assert.ErrorIs(t, err, store.ErrInvalidTransition)

		_, err = s.UpdateJobStatus(ctx, "job-guard", models.JobStatusFailed,
			store.WithExpectedStatus(models.JobStatusSubmitted, models.JobStatusRunning))
		assert.NoError(t, err)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := open(t)
		_, err := s.UpdateJobStatus(ctx, "job-nope", models.JobStatusCancelled)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ConcurrentTerminalWritesHaveOneWinner", func(t *testing.T) {
		s := open(t)
		running(t, s, "job-race")

		statuses := []models.JobStatus{
			models.JobStatusCompleted, models.JobStatusCancelled,
			models.JobStatusFailed, models.JobStatusCancelled,
			models.JobStatusCompleted, models.JobStatusFailed,
			models.JobStatusCancelled, models.JobStatusCompleted,
		}
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			wins   []models.JobStatus
			losses int
		)
		for _, st := range statuses {
			wg.Add(1)
			go func(st models.JobStatus) {
				defer wg.Done()
				_, err := s.UpdateJobStatus(ctx, "job-race", st)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins = append(wins, st)
					return
				}
				assert.ErrorIs(t, err, store.ErrJobFinalized)
				losses++
			}(st)
		}
		wg.Wait()

		require.Len(t, wins, 1)
		assert.Equal(t, len(statuses)-1, losses)
		got, err := s.GetJob(ctx, "job-race")
		require.NoError(t, err)
		assert.Equal(t, wins[0], got.Status)
	})

	t.Run("ListFilterAcrossPageBoundaries", func(t *testing.T) {
		for _, n := range []int{0, 1, 25} {
			t.Run(fmt.Sprintf("%d_completed", n), func(t *testing.T) {
				s := open(t)
				for i := 0; i < n; i++ {
					job := newJob(fmt.Sprintf("job-c%03d", i), models.JobStatusCompleted, baseTime.Add(time.Duration(i)*time.Minute))
					ended := job.CreatedAt
					job.EndedAt = &ended
					require.NoError(t, s.CreateJob(ctx, job))
				}
				for i := 0; i < 12; i++ {
					job := newJob(fmt.Sprintf("job-r%03d", i), models.JobStatusSubmitted, baseTime.Add(time.Duration(i)*time.Second))
					require.NoError(t, s.CreateJob(ctx, job))
				}

				seen := map[string]bool{}
				var last time.Time
				for skip := 0; ; skip += 10 {
					page, total, err := s.ListJobs(ctx, store.JobFilter{Status: models.JobStatusCompleted, Skip: skip, Limit: 10})
					require.NoError(t, err)
					assert.Equal(t, n, total)
					for _, j := range page {
						assert.Equal(t, models.JobStatusCompleted, j.Status)
						assert.False(t, seen[j.ID], "duplicate %s", j.ID)
						seen[j.ID] = true
						if !last.IsZero() {
							assert.False(t, j.CreatedAt.After(last), "not newest first")
						}
						last = j.CreatedAt
					}
					if len(page) < 10 {
						break
					}
				}
				assert.Len(t, seen, n)
			})
		}
	})

	t.Run("ListFilterByDatasetAndAlgorithm", func(t *testing.T) {
		s := open(t)
		a := newJob("job-a", models.JobStatusSubmitted, baseTime)
		b := newJob("job-b", models.JobStatusSubmitted, baseTime.Add(time.Second))
		b.DatasetID = "ds-2"
		c := newJob("job-c", models.JobStatusSubmitted, baseTime.Add(2*time.Second))
		c.Algorithm = "ppcor"
		for _, j := range []*models.Job{a, b, c} {
			require.NoError(t, s.CreateJob(ctx, j))
		}

		jobs, total, err := s.ListJobs(ctx, store.JobFilter{DatasetID: "ds-2"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-b", jobs[0].ID)

		jobs, total, err = s.ListJobs(ctx, store.JobFilter{Algorithm: "genie3"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, jobs, 2)
		assert.Equal(t, "job-b", jobs[0].ID)
		assert.Equal(t, "job-a", jobs[1].ID)
	})

	t.Run("ListDefaultsLimit", func(t *testing.T) {
		s := open(t)
		for i := 0; i < 15; i++ {
			require.NoError(t, s.CreateJob(ctx, newJob(fmt.Sprintf("job-%02d", i), models.JobStatusSubmitted, baseTime.Add(time.Duration(i)*time.Second))))
		}
		jobs, total, err := s.ListJobs(ctx, store.JobFilter{})
		require.NoError(t, err)
		assert.Equal(t, 15, total)
		assert.Len(t, jobs, store.DefaultListLimit)
		assert.Equal(t, "job-14", jobs[0].ID)
	})

	t.Run("Delete", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateJob(ctx, newJob("job-del", models.JobStatusSubmitted, baseTime)))

		deleted, err := s.DeleteJob(ctx, "job-del")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.DeleteJob(ctx, "job-del")
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = s.GetJob(ctx, "job-del")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
