package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/specialistvlad/pipegrid/internal/agent"
)

// Behavior scripts what a FakeAgent does for one command.
type Behavior func(ctx context.Context, cmd agent.Command) (agent.Result, error)

// Exit makes a command print out and exit with code.
func Exit(code int, out string) Behavior {
	return func(_ context.Context, cmd agent.Command) (agent.Result, error) {
		if cmd.Output != nil && out != "" {
			io.WriteString(cmd.Output, out)
		}
		return agent.Result{ExitCode: code}, nil
	}
}

// Sleep makes a command take d, honouring cancellation and the command
// timeout the way real agents do.
func Sleep(d time.Duration) Behavior {
	return func(ctx context.Context, cmd agent.Command) (agent.Result, error) {
		if cmd.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
			defer cancel()
		}
		select {
		case <-time.After(d):
			return agent.Result{}, nil
		case <-ctx.Done():
			return agent.Result{ExitCode: -1}, fmt.Errorf("fake agent: %w", ctx.Err())
		}
	}
}

// Fail makes a command fail to run at all.
func Fail(err error) Behavior {
	return func(context.Context, agent.Command) (agent.Result, error) {
		return agent.Result{ExitCode: -1}, err
	}
}

// ExecutionRecord holds the start and end times of one command.
type ExecutionRecord struct {
	Script string
	Env    map[string]string
	Start  time.Time
	End    time.Time
}

// FakeAgent is a scripted agent. Commands without a behavior succeed
// immediately. It records every command it runs.
type FakeAgent struct {
	name      string
	behaviors map[string]Behavior

	mu      sync.Mutex
	records []ExecutionRecord
}

// NewFakeAgent creates a FakeAgent. behaviors maps scripts to what they do.
func NewFakeAgent(name string, behaviors map[string]Behavior) *FakeAgent {
	if behaviors == nil {
		behaviors = map[string]Behavior{}
	}
	return &FakeAgent{name: name, behaviors: behaviors}
}

// Name implements agent.Agent.
func (a *FakeAgent) Name() string { return a.name }

// Run implements agent.Agent.
func (a *FakeAgent) Run(ctx context.Context, cmd agent.Command) (agent.Result, error) {
	rec := ExecutionRecord{Script: cmd.Script, Env: cmd.Env, Start: time.Now()}
	behavior, ok := a.behaviors[cmd.Script]
	if !ok {
		behavior = Exit(0, "")
	}
	res, err := behavior(ctx, cmd)
	rec.End = time.Now()

	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
	return res, err
}

// Records returns the commands run so far, in order.
func (a *FakeAgent) Records() []ExecutionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ExecutionRecord(nil), a.records...)
}

// Scripts returns the scripts run so far, in order.
func (a *FakeAgent) Scripts() []string {
	var out []string
	for _, r := range a.Records() {
		out = append(out, r.Script)
	}
	return out
}

// FakePool builds a pool of n agents sharing one behavior table, so tests
// can script commands regardless of which agent picks them up.
func FakePool(name string, n int, behaviors map[string]Behavior) (*agent.Pool, []*FakeAgent) {
	fakes := make([]*FakeAgent, n)
	agents := make([]agent.Agent, n)
	for i := range fakes {
		fakes[i] = NewFakeAgent(fmt.Sprintf("%s-%d", name, i+1), behaviors)
		agents[i] = fakes[i]
	}
	return agent.NewPool(name, agents...), fakes
}

// AllScripts merges the scripts run by all fakes.
func AllScripts(fakes []*FakeAgent) []string {
	var out []string
	for _, f := range fakes {
		out = append(out, f.Scripts()...)
	}
	return out
}

// AllRecords merges the records of all fakes.
func AllRecords(fakes []*FakeAgent) []ExecutionRecord {
	var out []ExecutionRecord
	for _, f := range fakes {
		out = append(out, f.Records()...)
	}
	return out
}
