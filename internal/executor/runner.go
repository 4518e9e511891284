package executor

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"time"
)

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	// Run executes the command with stdout and stderr both written to out.
	// exitCode is -1 when the process never produced an exit status.
	Run(ctx context.Context, out io.Writer, name string, args ...string) (exitCode int, err error)
}

// execRunner executes commands via os/exec.
type execRunner struct {
	waitDelay time.Duration
}

func (r *execRunner) Run(ctx context.Context, out io.Writer, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = r.waitDelay

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), err
	}
	return -1, err
}
