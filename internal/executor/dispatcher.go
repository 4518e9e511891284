// Package executor turns a job into an out-of-process algorithm run and maps
// the outcome (exit status, output file, timeout) onto an error kind.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/kiranshivaraju/webgenie/internal/config"
	"github.com/kiranshivaraju/webgenie/internal/network"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

const (
	LogFileName = "execution.log"

	containerInput  = "/data/input"
	containerOutput = "/data/output"
)

// OutputFileName is the network file an algorithm must write in its job dir.
func OutputFileName(algorithm string) string {
	return algorithm + "_network.tsv"
}

// ContainerName is the docker container name used for a job.
func ContainerName(jobID string) string {
	return "webgenie-" + jobID
}

// AlgorithmResolver looks algorithms up by name.
type AlgorithmResolver interface {
	Resolve(name string) (models.Algorithm, error)
}

// Request is one algorithm execution.
type Request struct {
	JobID       string
	Algorithm   string
	DatasetPath string
	JobDir      string
	Parameters  map[string]any
	// Timeout overrides the configured ceiling when positive.
	Timeout time.Duration
}

// Result describes a successful execution.
type Result struct {
	OutputFile string
	Metrics    models.NetworkStats
	Duration   time.Duration
}

// Dispatcher runs algorithms either as docker containers or as local commands.
type Dispatcher struct {
	cfg        config.ExecutorConfig
	algorithms AlgorithmResolver
	containers ContainerManager
	runner     commandRunner
	dockerBin  string
}

// New creates a dispatcher. containers may be nil in local mode.
func New(cfg config.ExecutorConfig, algorithms AlgorithmResolver, containers ContainerManager) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		algorithms: algorithms,
		containers: containers,
		runner:     &execRunner{waitDelay: 10 * time.Second},
		dockerBin:  "docker",
	}
}

// Timeout is the wall-clock ceiling applied to every run.
func (d *Dispatcher) Timeout() time.Duration {
	return d.cfg.Timeout
}

// Run executes the algorithm and blocks until it exits, times out, or ctx
// ends. Execution failures are returned as *ExecError. When ctx ends first the
// returned error wraps context.Cause(ctx).
func (d *Dispatcher) Run(ctx context.Context, req Request) (*Result, error) {
	alg, err := d.algorithms.Resolve(req.Algorithm)
	if err != nil {
		return nil, err
	}

	timeout := d.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	if err := os.MkdirAll(req.JobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	outputName := OutputFileName(alg.Name)
	outputPath := filepath.Join(req.JobDir, outputName)
	if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale output: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(req.JobDir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open execution log: %w", err)
	}
	defer logFile.Close()

	name, args, err := d.command(alg, req, outputPath, outputName)
	if err != nil {
		return nil, err
	}

	log := slog.With("job_id", req.JobID, "algorithm", alg.Name)
	log.Info("starting algorithm", "mode", d.cfg.Mode, "timeout", timeout)
	fmt.Fprintf(logFile, "[%s] running %s %v\n", time.Now().UTC().Format(time.RFC3339), name, args)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	exitCode, runErr := d.runner.Run(runCtx, logFile, name, args...)
	elapsed := time.Since(started)

	switch {
	case ctx.Err() != nil:
		d.removeContainer(req.JobID)
		fmt.Fprintf(logFile, "[%s] interrupted after %s\n", time.Now().UTC().Format(time.RFC3339), elapsed.Round(time.Second))
		return nil, fmt.Errorf("execution interrupted: %w", context.Cause(ctx))

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		d.removeContainer(req.JobID)
		fmt.Fprintf(logFile, "[%s] timed out after %s\n", time.Now().UTC().Format(time.RFC3339), timeout)
		log.Warn("algorithm timed out", "timeout", timeout)
		return nil, newExecError(models.ErrorKindTimeout, ErrTimeout, "algorithm timed out after %s", timeout)

	case runErr != nil && exitCode < 0:
		log.Error("algorithm failed to start", "error", runErr)
		return nil, &ExecError{
			Kind:     models.ErrorKindInternal,
			ExitCode: exitCode,
			Message:  fmt.Sprintf("failed to start %s: %v", name, runErr),
			Err:      fmt.Errorf("%w: %w", ErrStart, runErr),
		}

	case exitCode != 0:
		fmt.Fprintf(logFile, "[%s] exited with code %d\n", time.Now().UTC().Format(time.RFC3339), exitCode)
		log.Warn("algorithm exited with error", "exit_code", exitCode)
		e := newExecError(models.ErrorKindExitCode, ErrNonZeroExit, "algorithm exited with code %d", exitCode)
		e.ExitCode = exitCode
		return nil, e
	}

	info, err := os.Stat(outputPath)
	if err != nil || !info.Mode().IsRegular() {
		log.Warn("algorithm produced no output", "output", outputPath)
		return nil, newExecError(models.ErrorKindMissingOutput, ErrMissingOutput,
			"algorithm exited successfully but did not write %s", outputName)
	}

	parsed, err := network.ParseFile(outputPath)
	if err != nil {
		return nil, newExecError(models.ErrorKindMalformedOutput, ErrMalformedOutput, "read network file: %v", err)
	}
	if len(parsed.Edges) == 0 && parsed.Skipped > 0 {
		return nil, newExecError(models.ErrorKindMalformedOutput, ErrMalformedOutput,
			"network file has %d rows and no valid edges", parsed.Skipped)
	}

	metrics := network.Stats(parsed, outputName)
	fmt.Fprintf(logFile, "[%s] completed in %s: %d edges, %d nodes\n",
		time.Now().UTC().Format(time.RFC3339), elapsed.Round(time.Millisecond), metrics.NumEdges, metrics.NumNodes)
	log.Info("algorithm completed", "edges", metrics.NumEdges, "nodes", metrics.NumNodes, "duration", elapsed)

	return &Result{OutputFile: outputPath, Metrics: metrics, Duration: elapsed}, nil
}

func (d *Dispatcher) command(alg models.Algorithm, req Request, outputPath, outputName string) (string, []string, error) {
	flags := parameterFlags(req.Parameters)

	if d.cfg.Mode == config.ExecutorModeLocal {
		if len(alg.Command) == 0 {
			return "", nil, fmt.Errorf("algorithm %s has no local command", alg.Name)
		}
		args := append([]string{}, alg.Command[1:]...)
		args = append(args, "--input", req.DatasetPath, "--output", outputPath)
		return alg.Command[0], append(args, flags...), nil
	}

	if alg.Image == "" {
		return "", nil, fmt.Errorf("algorithm %s has no container image", alg.Name)
	}
	jobDir, err := filepath.Abs(req.JobDir)
	if err != nil {
		return "", nil, err
	}
	args := []string{
		"run", "--rm",
		"--name", ContainerName(req.JobID),
		"-v", req.DatasetPath + ":" + containerInput + ":ro",
		"-v", jobDir + ":" + containerOutput,
	}
	if d.cfg.MemoryLimit != "" {
		args = append(args, "-m", d.cfg.MemoryLimit)
	}
	args = append(args, alg.Image,
		"--input", containerInput,
		"--output", containerOutput+"/"+outputName,
	)
	return d.dockerBin, append(args, flags...), nil
}

// removeContainer force-removes a job's container after timeout or
// cancellation; killing the docker CLI alone leaves it running.
func (d *Dispatcher) removeContainer(jobID string) {
	if d.cfg.Mode != config.ExecutorModeDocker || d.containers == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.containers.ForceRemove(ctx, ContainerName(jobID)); err != nil {
		slog.Warn("failed to remove container", "job_id", jobID, "error", err)
	}
}

// parameterFlags renders parameters as --key=value in key order.
func parameterFlags(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flags := make([]string, 0, len(keys))
	for _, k := range keys {
		flags = append(flags, "--"+k+"="+formatValue(params[k]))
	}
	return flags
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
