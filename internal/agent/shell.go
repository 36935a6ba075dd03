package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// DefaultShell is used when a shell agent is configured without one.
const DefaultShell = "sh"

// waitDelay bounds how long a cancelled command may keep its output open.
const waitDelay = 2 * time.Second

// ShellAgent runs commands as `<shell> -c <script>` on the local host. The
// host environment is inherited and overlaid with the command env.
type ShellAgent struct {
	name    string
	shell   string
	workDir string
}

// NewShellAgent creates a local shell agent.
func NewShellAgent(name, shell, workDir string) *ShellAgent {
	if shell == "" {
		shell = DefaultShell
	}
	return &ShellAgent{name: name, shell: shell, workDir: workDir}
}

// Name implements Agent.
func (a *ShellAgent) Name() string { return a.name }

// Run implements Agent.
func (a *ShellAgent) Run(ctx context.Context, cmd Command) (Result, error) {
	ctx, cancel := withTimeout(ctx, cmd)
	defer cancel()

	c := exec.CommandContext(ctx, a.shell, "-c", cmd.Script)
	c.Dir = a.workDir
	c.Env = append(os.Environ(), envSlice(cmd.Env)...)
	if cmd.Output != nil {
		c.Stdout = cmd.Output
		c.Stderr = cmd.Output
	}
	killProcessGroup(c)
	c.WaitDelay = waitDelay

	err := c.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{ExitCode: -1}, fmt.Errorf("agent %s: command interrupted: %w", a.name, ctxErr)
	}
	if err == nil {
		return Result{}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode()}, nil
	}
	return Result{ExitCode: -1}, fmt.Errorf("agent %s: failed to start %s: %w", a.name, a.shell, err)
}
