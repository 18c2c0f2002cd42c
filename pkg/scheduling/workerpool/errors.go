package workerpool

import (
	"fmt"

	gferrors "github.com/vnykmshr/stealflow/pkg/common/errors"
)

// TaskError is the failure of a single task, tagged with the worker that ran
// it. It unwraps to the task's own error.
type TaskError struct {
	WorkerID int
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("workerpool: task failed on worker %d: %v", e.WorkerID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered task panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v\nStack trace:\n%s", e.Value, e.Stack)
}

// Unwrap returns the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ErrNilTask is returned when a nil Task is spawned or submitted.
var ErrNilTask error = gferrors.NewValidationError(module, "task", nil, "cannot be nil")
