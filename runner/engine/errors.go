package engine

import (
	"errors"
	"fmt"
)

var (
	ErrOOMKilled      = errors.New("oom killed")
	ErrTimedOut       = errors.New("timed out")
	ErrWorkflowFailed = errors.New("workflow failed")
	ErrTreeDirty      = errors.New("working tree modified")
)

// StepError reports a step whose container exited non-zero.
type StepError struct {
	Step      string
	ExitCode  int64
	OOMKilled bool
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed with exit code %d", e.Step, e.ExitCode)
}

func (e *StepError) Unwrap() error {
	if e.OOMKilled {
		return ErrOOMKilled
	}
	return ErrWorkflowFailed
}
