package enclave

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a run failure.
type ErrorKind string

const (
	KindScript   ErrorKind = "script_error"
	KindPolicy   ErrorKind = "policy"
	KindTool     ErrorKind = "tool_error"
	KindTimeout  ErrorKind = "timeout"
	KindInternal ErrorKind = "internal"
)

// RunError is the normalized failure shape every fault inside a run
// collapses to. Policy and timeout errors always terminate the run;
// script and tool errors can be observed by catch under the standard
// security level.
type RunError struct {
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind"`
}

func (e *RunError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// Catchable reports whether a catch clause may observe e at all. The
// security level applies a further restriction on top of this.
func (e *RunError) Catchable() bool {
	return e.Kind == KindScript || e.Kind == KindTool
}

func scriptErrf(format string, args ...any) *RunError {
	return &RunError{Message: fmt.Sprintf(format, args...), Kind: KindScript}
}

func policyErrf(format string, args ...any) *RunError {
	return &RunError{Message: fmt.Sprintf(format, args...), Kind: KindPolicy}
}

func toolErrf(format string, args ...any) *RunError {
	return &RunError{Message: fmt.Sprintf(format, args...), Kind: KindTool}
}

func timeoutErrf(format string, args ...any) *RunError {
	return &RunError{Message: fmt.Sprintf(format, args...), Kind: KindTimeout}
}

func internalErrf(format string, args ...any) *RunError {
	return &RunError{Message: fmt.Sprintf(format, args...), Kind: KindInternal}
}

// asRunError normalizes any error into the bounded shape. Unclassified
// errors become internal, never script-visible detail.
func asRunError(err error) *RunError {
	var re *RunError
	if errors.As(err, &re) {
		return re
	}
	return &RunError{Message: err.Error(), Kind: KindInternal}
}

// Result is the bounded outcome of one run. Value may contain reference
// tokens when the script returns oversized data directly.
type Result struct {
	Success bool      `json:"success"`
	Value   any       `json:"value,omitempty"`
	Error   *RunError `json:"error,omitempty"`
}

func failure(err error) *Result {
	return &Result{Success: false, Error: asRunError(err)}
}
