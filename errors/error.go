package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// PlanningError occurs when a lineage cannot be built or an action cannot be planned.
// PlanningErrors are client programming errors and are reported before any task runs.
type PlanningError struct {
	Op     string
	Reason string
}

// Error returns a textual representation of this PlanningError
func (e PlanningError) Error() string {
	return fmt.Sprintf("Unable to plan %s: %s", e.Op, e.Reason)
}

// TypeMismatchError occurs when a function or record does not match the element type it is declared over
type TypeMismatchError struct {
	Op       string
	Expected string
	Actual   string
}

// Error returns a textual representation of this TypeMismatchError
func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("Type mismatch in %s: expected %s, got %s", e.Op, e.Expected, e.Actual)
}

// ReleasedDatasetError occurs when a released Dataset is used to build lineage or run an action
type ReleasedDatasetError struct{ ID int64 }

// Error returns a textual representation of this ReleasedDatasetError
func (e ReleasedDatasetError) Error() string {
	return fmt.Sprintf("Dataset %d has been released", e.ID)
}

// UnknownDatasetError occurs when a Dataset id is not present in a lineage graph
type UnknownDatasetError struct{ ID int64 }

// Error returns a textual representation of this UnknownDatasetError
func (e UnknownDatasetError) Error() string {
	return fmt.Sprintf("Dataset %d does not exist", e.ID)
}

// UnknownFunctionError occurs when a function name has not been registered
type UnknownFunctionError struct{ Name string }

// Error returns a textual representation of this UnknownFunctionError
func (e UnknownFunctionError) Error() string {
	return fmt.Sprintf("Function %q is not registered", e.Name)
}

// UnknownConnectorError occurs when a source or sink kind has not been registered
type UnknownConnectorError struct{ Kind string }

// Error returns a textual representation of this UnknownConnectorError
func (e UnknownConnectorError) Error() string {
	return fmt.Sprintf("Connector %q is not registered", e.Kind)
}

// EmptyDatasetError occurs when an action which requires at least one element runs against an empty Dataset
type EmptyDatasetError struct{ Op string }

// Error returns a textual representation of this EmptyDatasetError
func (e EmptyDatasetError) Error() string {
	return fmt.Sprintf("%s of an empty Dataset", e.Op)
}

// SessionClosedError occurs when a closed Session is used
type SessionClosedError struct{}

// Error returns a textual representation of this SessionClosedError
func (e SessionClosedError) Error() string {
	return "Session is closed"
}

// NoWorkersError occurs when no live worker is available to run a task
type NoWorkersError struct{}

// Error returns a textual representation of this NoWorkersError
func (e NoWorkersError) Error() string {
	return "No live workers available"
}

// WorkerUnreachableError occurs when a worker cannot be contacted. It is the only transient task failure.
type WorkerUnreachableError struct {
	Worker string
	Err    error
}

// Error returns a textual representation of this WorkerUnreachableError
func (e WorkerUnreachableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("Worker %s is unreachable", e.Worker)
	}
	return fmt.Sprintf("Worker %s is unreachable: %v", e.Worker, e.Err)
}

// Unwrap returns the underlying cause
func (e WorkerUnreachableError) Unwrap() error {
	return e.Err
}

// FetchFailedError occurs when the output of a shuffle map task cannot be read
type FetchFailedError struct {
	Shuffle string
	Mapper  int
	Worker  string
	Err     error
}

// Error returns a textual representation of this FetchFailedError
func (e FetchFailedError) Error() string {
	msg := fmt.Sprintf("Unable to fetch output of mapper %d for %s", e.Mapper, e.Shuffle)
	if len(e.Worker) > 0 {
		msg += fmt.Sprintf(" from worker %s", e.Worker)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e FetchFailedError) Unwrap() error {
	return e.Err
}

// TaskError occurs when a task fails terminally
type TaskError struct {
	Stage     int
	Partition int
	Attempts  int
	Worker    string
	Err       error
}

// Error returns a textual representation of this TaskError
func (e TaskError) Error() string {
	return fmt.Sprintf("Task for partition %d of stage %d failed after %d attempt(s) (last worker %s): %v", e.Partition, e.Stage, e.Attempts, e.Worker, e.Err)
}

// Unwrap returns the underlying cause
func (e TaskError) Unwrap() error {
	return e.Err
}

// JobFailedError is reported to clients when a Job cannot complete. Lineage holds the
// descriptions of the Datasets leading to the target, target first.
type JobFailedError struct {
	JobID   string
	Lineage []string
	Err     error
}

// Error returns a textual representation of this JobFailedError
func (e JobFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s failed: %v", e.JobID, e.Err)
	if len(e.Lineage) > 0 {
		fmt.Fprintf(&b, "\nLineage: %s", strings.Join(e.Lineage, " <- "))
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e JobFailedError) Unwrap() error {
	return e.Err
}

// IsTransient returns true iff err may succeed when retried on another worker
func IsTransient(err error) bool {
	var unreachable WorkerUnreachableError
	return stderrors.As(err, &unreachable)
}

// AsFetchFailed extracts a FetchFailedError from an error chain, if present
func AsFetchFailed(err error) (FetchFailedError, bool) {
	var fetchFailed FetchFailedError
	ok := stderrors.As(err, &fetchFailed)
	return fetchFailed, ok
}
