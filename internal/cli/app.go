// Package cli implements the grnctl commands. Remote commands go through an
// API; the analyze commands work on local network files.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kiranshivaraju/webgenie/internal/api/response"
	"github.com/kiranshivaraju/webgenie/internal/client"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// API is the remote surface grnctl drives; *client.Client satisfies it.
type API interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, opts client.ListOptions) ([]models.Job, response.PaginationMeta, error)
	Logs(ctx context.Context, id string) (string, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
	Watch(ctx context.Context, id string, onUpdate func(*models.Job) error) (*models.Job, error)
	Summary(ctx context.Context, id string) (*models.NetworkSummary, error)
	Compare(ctx context.Context, jobA, jobB string, directed bool) (*models.NetworkComparison, error)
	DownloadNetwork(ctx context.Context, id, format string, w io.Writer) error
	Algorithms(ctx context.Context) ([]models.Algorithm, error)
	Algorithm(ctx context.Context, name string) (*models.Algorithm, error)
	CheckImage(ctx context.Context, name string) (*client.ImageStatus, error)
}

var _ API = (*client.Client)(nil)

// Params are the connection settings shared by every remote command.
type Params struct {
	Server  string
	APIKey  string
	Timeout time.Duration
	JSON    bool
}

// App carries the command dependencies. API is created lazily from Params
// unless a test injects one.
type App struct {
	Params *Params
	API    API
	Out    io.Writer
}

func New() *App {
	return &App{
		Params: &Params{},
		Out:    os.Stdout,
	}
}

func (a *App) api() API {
	if a.API == nil {
		a.API = client.New(a.Params.Server, a.Params.APIKey, a.Params.Timeout)
	}
	return a.API
}

// printJSON writes v indented.
func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) printJob(job *models.Job) error {
	if a.Params.JSON {
		return a.printJSON(job)
	}
	w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", job.ID)
	fmt.Fprintf(w, "Name:\t%s\n", job.Name)
	fmt.Fprintf(w, "Dataset:\t%s\n", job.DatasetID)
	fmt.Fprintf(w, "Algorithm:\t%s\n", job.Algorithm)
	fmt.Fprintf(w, "Status:\t%s\n", job.Status)
	fmt.Fprintf(w, "Progress:\t%.0f%%\n", job.Progress)
	if job.StartedAt != nil {
		fmt.Fprintf(w, "Started:\t%s\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.EndedAt != nil {
		fmt.Fprintf(w, "Ended:\t%s\n", job.EndedAt.Format(time.RFC3339))
	}
	if job.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:\t%s (%s)\n", *job.ErrorMessage, job.ErrorKind)
	}
	if job.Metrics != nil {
		fmt.Fprintf(w, "Edges:\t%d\n", job.Metrics.NumEdges)
		fmt.Fprintf(w, "Nodes:\t%d\n", job.Metrics.NumNodes)
	}
	return w.Flush()
}

func (a *App) printJobTable(list []models.Job) error {
	w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tALGORITHM\tDATASET\tSTATUS\tCREATED")
	for _, j := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Algorithm, j.DatasetID, j.Status, j.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func (a *App) printSummary(sum *models.NetworkSummary) error {
	if a.Params.JSON {
		return a.printJSON(sum)
	}
	w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Edges:\t%d\n", sum.NumEdges)
	fmt.Fprintf(w, "Nodes:\t%d\n", sum.NumNodes)
	fmt.Fprintf(w, "Density:\t%.4f\n", sum.Density)
	fmt.Fprintf(w, "Avg degree:\t%.4f\n", sum.AvgDegree)
	fmt.Fprintf(w, "Max degree:\t%d\n", sum.MaxDegree)
	if sum.SkippedRows > 0 {
		fmt.Fprintf(w, "Skipped rows:\t%d\n", sum.SkippedRows)
	}
	return w.Flush()
}

func (a *App) printComparison(cmp *models.NetworkComparison) error {
	if a.Params.JSON {
		return a.printJSON(cmp)
	}
	w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Jaccard:\t%.4f\n", cmp.Jaccard)
	fmt.Fprintf(w, "Overlap:\t%d\n", cmp.Overlap)
	fmt.Fprintf(w, "Only in A:\t%d\n", cmp.OnlyInA)
	fmt.Fprintf(w, "Only in B:\t%d\n", cmp.OnlyInB)
	fmt.Fprintf(w, "Directed:\t%t\n", cmp.Directed)
	return w.Flush()
}

// parseParams turns repeated key=value flags into typed parameters. Values
// that read as integers, floats or booleans keep that type.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q must be key=value", p)
		}
		params[k] = parseValue(strings.TrimSpace(v))
	}
	return params, nil
}

func parseValue(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
