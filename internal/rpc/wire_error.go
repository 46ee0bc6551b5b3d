package rpc

import (
	"context"
	stderrors "errors"

	"github.com/go-sif/rdd/errors"
)

// WireError is an error which crosses process boundaries without losing its type, for the
// errors which drive scheduling decisions
type WireError struct {
	Kind     string
	Message  string
	Worker   string
	Shuffle  string
	Mapper   int
	Op       string
	Expected string
	Actual   string
	Cause    *WireError
}

// RemoteError is an error raised by a remote process, preserved as text
type RemoteError struct {
	Message string
}

// Error returns the message of this RemoteError
func (e RemoteError) Error() string {
	return e.Message
}

// EncodeError converts an error for transmission
func EncodeError(err error) *WireError {
	if err == nil {
		return nil
	}
	var fetchFailed errors.FetchFailedError
	var unreachable errors.WorkerUnreachableError
	var mismatch errors.TypeMismatchError
	var unknownFn errors.UnknownFunctionError
	var unknownConnector errors.UnknownConnectorError
	switch {
	case stderrors.As(err, &fetchFailed):
		return &WireError{Kind: "fetchFailed", Message: err.Error(), Shuffle: fetchFailed.Shuffle, Mapper: fetchFailed.Mapper, Worker: fetchFailed.Worker, Cause: EncodeError(fetchFailed.Err)}
	case stderrors.As(err, &unreachable):
		return &WireError{Kind: "unreachable", Message: err.Error(), Worker: unreachable.Worker, Cause: EncodeError(unreachable.Err)}
	case stderrors.As(err, &mismatch):
		return &WireError{Kind: "typeMismatch", Message: err.Error(), Op: mismatch.Op, Expected: mismatch.Expected, Actual: mismatch.Actual}
	case stderrors.As(err, &unknownFn):
		return &WireError{Kind: "unknownFunction", Message: err.Error(), Op: unknownFn.Name}
	case stderrors.As(err, &unknownConnector):
		return &WireError{Kind: "unknownConnector", Message: err.Error(), Op: unknownConnector.Kind}
	case stderrors.Is(err, context.Canceled):
		return &WireError{Kind: "canceled", Message: err.Error()}
	case stderrors.Is(err, context.DeadlineExceeded):
		return &WireError{Kind: "deadline", Message: err.Error()}
	default:
		return &WireError{Kind: "remote", Message: err.Error()}
	}
}

// Decode reconstructs the error which was encoded
func (w *WireError) Decode() error {
	if w == nil {
		return nil
	}
	switch w.Kind {
	case "fetchFailed":
		return errors.FetchFailedError{Shuffle: w.Shuffle, Mapper: w.Mapper, Worker: w.Worker, Err: w.Cause.Decode()}
	case "unreachable":
		return errors.WorkerUnreachableError{Worker: w.Worker, Err: w.Cause.Decode()}
	case "typeMismatch":
		return errors.TypeMismatchError{Op: w.Op, Expected: w.Expected, Actual: w.Actual}
	case "unknownFunction":
		return errors.UnknownFunctionError{Name: w.Op}
	case "unknownConnector":
		return errors.UnknownConnectorError{Kind: w.Op}
	case "canceled":
		return context.Canceled
	case "deadline":
		return context.DeadlineExceeded
	default:
		return RemoteError{Message: w.Message}
	}
}
