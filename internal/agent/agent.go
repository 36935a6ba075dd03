package agent

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"
)

// ErrAgentUnavailable is returned when a pool has no free agent.
var ErrAgentUnavailable = errors.New("no agent available in pool")

// Command is a single step command handed to an agent.
type Command struct {
	Script string
	Env    map[string]string
	// Timeout bounds the command on its own. Zero means no limit beyond ctx.
	Timeout time.Duration
	// Output receives combined stdout and stderr. Nil discards it.
	Output io.Writer
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
}

// Agent executes commands. A non-zero exit is reported through Result with
// a nil error; an error means the command could not be run to completion,
// including cancellation, in which case the error wraps ctx.Err().
type Agent interface {
	Name() string
	Run(ctx context.Context, cmd Command) (Result, error)
}

// envSlice renders env as sorted KEY=value pairs.
func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func output(cmd Command) io.Writer {
	if cmd.Output == nil {
		return io.Discard
	}
	return cmd.Output
}

// withTimeout applies the command timeout to ctx.
func withTimeout(ctx context.Context, cmd Command) (context.Context, context.CancelFunc) {
	if cmd.Timeout > 0 {
		return context.WithTimeout(ctx, cmd.Timeout)
	}
	return context.WithCancel(ctx)
}
