package executor

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/webgenie/pkg/models"
)

var (
	ErrTimeout         = errors.New("algorithm timed out")
	ErrNonZeroExit     = errors.New("algorithm exited with non-zero status")
	ErrMissingOutput   = errors.New("algorithm produced no network file")
	ErrMalformedOutput = errors.New("algorithm output has no valid edges")
	ErrStart           = errors.New("algorithm could not be started")
)

// ExecError is an execution failure to be recorded on the job. Kind is the
// job's error_kind; ExitCode is set for ErrNonZeroExit.
type ExecError struct {
	Kind     models.ErrorKind
	ExitCode int
	Message  string
	Err      error
}

func (e *ExecError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ExecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the error kind to record for err. Errors not produced by
// the dispatcher map to ErrorKindInternal.
func KindOf(err error) models.ErrorKind {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return models.ErrorKindInternal
}

func newExecError(kind models.ErrorKind, sentinel error, format string, args ...any) *ExecError {
	return &ExecError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: sentinel}
}
