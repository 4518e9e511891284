package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kiranshivaraju/webgenie/internal/cache"
	"github.com/kiranshivaraju/webgenie/internal/executor"
	"github.com/kiranshivaraju/webgenie/internal/network"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

const summaryTTL = time.Hour

// ResultInfo locates a completed job's outputs.
type ResultInfo struct {
	JobID       string               `json:"job_id"`
	Algorithm   string               `json:"algorithm"`
	Status      models.JobStatus     `json:"status"`
	ResultPath  string               `json:"result_path"`
	NetworkFile string               `json:"network_file"`
	LogFile     string               `json:"log_file"`
	Metrics     *models.NetworkStats `json:"metrics,omitempty"`
}

// Result returns where a completed job's network lives. Jobs still in
// progress yield ErrResultNotReady; failed or cancelled ones ErrNoResult.
func (s *Service) Result(ctx context.Context, id string) (*ResultInfo, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: job is %s", ErrResultNotReady, job.Status)
	}
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: job is %s", ErrNoResult, job.Status)
	}

	path := filepath.Join(job.ResultPath, executor.OutputFileName(job.Algorithm))
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: network file is missing", ErrNoResult)
	}
	return &ResultInfo{
		JobID:       job.ID,
		Algorithm:   job.Algorithm,
		Status:      job.Status,
		ResultPath:  job.ResultPath,
		NetworkFile: path,
		LogFile:     job.LogFile,
		Metrics:     job.Metrics,
	}, nil
}

// Edges loads the job's network.
func (s *Service) Edges(ctx context.Context, id string) (*network.ParseResult, error) {
	info, err := s.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := network.ParseFile(info.NetworkFile)
	if err != nil {
		return nil, fmt.Errorf("read network: %w", err)
	}
	s.metrics.SkippedRows(res.Skipped)
	return res, nil
}

// Summary computes the job's network statistics. Completed results never
// change, so summaries are cached.
func (s *Service) Summary(ctx context.Context, id string) (*models.NetworkSummary, error) {
	if s.cache != nil {
		if sum, ok := cache.GetJSON[models.NetworkSummary](ctx, s.cache, cache.SummaryKey(id)); ok {
			return sum, nil
		}
	}

	res, err := s.Edges(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := network.Summarize(res.Edges)
	sum.SkippedRows = res.Skipped

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, cache.SummaryKey(id), sum, summaryTTL); err != nil {
			slog.Debug("cache summary", "job_id", id, "error", err)
		}
	}
	return &sum, nil
}

// Compare computes the edge overlap of two completed jobs.
func (s *Service) Compare(ctx context.Context, jobA, jobB string, directed bool) (*models.NetworkComparison, error) {
	if jobA == "" || jobB == "" {
		return nil, fmt.Errorf("%w: two job ids are required", ErrValidation)
	}
	a, err := s.Edges(ctx, jobA)
	if err != nil {
		return nil, err
	}
	b, err := s.Edges(ctx, jobB)
	if err != nil {
		return nil, err
	}
	cmp := network.Compare(a.Edges, b.Edges, network.CompareOptions{Directed: directed})
	cmp.JobA = jobA
	cmp.JobB = jobB
	return &cmp, nil
}
