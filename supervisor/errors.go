package supervisor

import (
	"fmt"

	"gortlbridge/shared"
)

// ErrorKind classifies why a decoder run ended.
type ErrorKind int

const (
	LaunchFailure ErrorKind = iota + 1
	ProcessCrash
)

func (k ErrorKind) String() string {
	switch k {
	case LaunchFailure:
		return "launch failure"
	case ProcessCrash:
		return "process crash"
	default:
		return "unknown"
	}
}

// RunError describes a failed decoder run. Reason is the text published with
// the Error status.
type RunError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *RunError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Is matches the shared launch/crash sentinels against Kind.
func (e *RunError) Is(target error) bool {
	switch target {
	case shared.ErrLaunchFailure:
		return e.Kind == LaunchFailure
	case shared.ErrProcessCrash:
		return e.Kind == ProcessCrash
	}
	return false
}
