package executor

import (
	"fmt"
	"time"
)

// StepFailure reports a step that exited non-zero or could not be run.
type StepFailure struct {
	Instance string
	Step     string
	ExitCode int
	// Err is set when the agent failed rather than the command.
	Err error
}

func (e *StepFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("instance %s: step %q could not run: %v", e.Instance, e.Step, e.Err)
	}
	return fmt.Sprintf("instance %s: step %q exited with status %d", e.Instance, e.Step, e.ExitCode)
}

func (e *StepFailure) Unwrap() error { return e.Err }

// TimeoutFailure reports a step or instance that ran past its timeout.
type TimeoutFailure struct {
	Instance string
	Step     string
	Timeout  time.Duration
	// Instance-wide when true, otherwise the step's own timeout.
	InstanceWide bool
}

func (e *TimeoutFailure) Error() string {
	scope := "step"
	if e.InstanceWide {
		scope = "instance"
	}
	return fmt.Sprintf("instance %s: %s timeout of %s exceeded during step %q", e.Instance, scope, e.Timeout, e.Step)
}
