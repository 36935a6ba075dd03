package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strconv"
	"time"

	"github.com/specialistvlad/pipegrid/internal/agent"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/expr"
	"github.com/specialistvlad/pipegrid/internal/model"
	"github.com/specialistvlad/pipegrid/internal/storage"
	"github.com/zclconf/go-cty/cty"
)

// DefaultTailLimit is how much output a StepResult keeps inline.
const DefaultTailLimit = 4 << 10

// Values of the job.status runtime variable.
const (
	jobStatusSuccess = "success"
	jobStatusFailure = "failure"
)

// Skip reasons reported for steps that never ran.
const (
	reasonCondition    = "condition"
	reasonPrevFailed   = "previous step failed"
	reasonTimedOut     = "instance timed out"
	reasonCancelled    = "run aborted"
	reasonConditionErr = "condition could not be evaluated"
)

// Outcome is the terminal result of running one instance.
type Outcome struct {
	// Status is Succeeded, Failed or TimedOut.
	Status  model.Status
	Err     error
	Results []model.StepResult
}

// StepRunner executes the steps of instances. It holds no per-instance
// state and may run many instances concurrently.
type StepRunner struct {
	eval      *expr.Evaluator
	store     storage.OutputStore
	runID     string
	tailLimit int
}

// Option configures a StepRunner.
type Option func(*StepRunner)

// WithTailLimit sets how many bytes of output each StepResult keeps.
func WithTailLimit(n int) Option {
	return func(r *StepRunner) { r.tailLimit = n }
}

// NewStepRunner creates a StepRunner. A nil store discards output.
func NewStepRunner(eval *expr.Evaluator, store storage.OutputStore, runID string, opts ...Option) *StepRunner {
	if store == nil {
		store = storage.NopStore{}
	}
	r := &StepRunner{eval: eval, store: store, runID: runID, tailLimit: DefaultTailLimit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// runState is what deferred conditions can see while an instance runs.
type runState struct {
	failedSteps int
	steps       map[string]cty.Value
}

func (s *runState) scope(base expr.Scope) expr.Scope {
	status := jobStatusSuccess
	if s.failedSteps > 0 {
		status = jobStatusFailure
	}
	return base.
		With(expr.RootJob, cty.ObjectVal(map[string]cty.Value{
			"status":       cty.StringVal(status),
			"failed_steps": cty.NumberIntVal(int64(s.failedSteps)),
		})).
		WithMap(expr.RootSteps, s.steps)
}

func (s *runState) record(step *model.Step, res model.StepResult) {
	if step.ID == "" {
		return
	}
	s.steps[step.ID] = cty.ObjectVal(map[string]cty.Value{
		"outcome":   cty.StringVal(string(res.Outcome)),
		"exit_code": cty.NumberIntVal(int64(res.ExitCode)),
	})
}

// Run executes inst on a. Each StepResult is passed to emit as soon as it
// is known, including the skipped steps after a failure. Run returns when
// every step has a result.
func (r *StepRunner) Run(ctx context.Context, inst *model.Instance, a agent.Agent, emit func(model.StepResult)) Outcome {
	ctx, logger := ctxlog.With(ctx, "instance", inst.Key(), "agent", a.Name())
	logger.Info("▶️ Starting instance", "steps", len(inst.Steps))

	runCtx, cancel := context.WithCancel(ctx)
	if inst.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inst.Timeout)
	}
	defer cancel()

	state := &runState{steps: make(map[string]cty.Value)}
	out := Outcome{Status: model.StatusSucceeded}
	report := func(res model.StepResult) {
		out.Results = append(out.Results, res)
		if emit != nil {
			emit(res)
		}
	}

	for i, step := range inst.Steps {
		res, stop := r.runStep(ctx, runCtx, inst, step, a, state)
		report(res)
		state.record(step, res)
		if res.Outcome == model.OutcomeFailure || res.Outcome == model.OutcomeTimedOut {
			state.failedSteps++
		}
		if stop == nil {
			continue
		}

		out.Err = stop
		out.Status = model.StatusFailed
		reason := reasonPrevFailed
		var timeout *TimeoutFailure
		switch {
		case errors.As(stop, &timeout):
			out.Status = model.StatusTimedOut
			reason = reasonTimedOut
		case res.Outcome == model.OutcomeCancelled:
			reason = reasonCancelled
		}
		for _, rest := range inst.Steps[i+1:] {
			report(skipped(inst, rest, reason))
		}
		break
	}

	switch out.Status {
	case model.StatusSucceeded:
		logger.Info("✅ Finished instance")
	default:
		logger.Warn("❌ Instance did not succeed", "status", out.Status, "error", out.Err)
	}
	return out
}

// runStep runs one step. A non-nil error stops the instance.
func (r *StepRunner) runStep(ctx, runCtx context.Context, inst *model.Instance, step *model.Step, a agent.Agent, state *runState) (model.StepResult, error) {
	logger := ctxlog.FromContext(ctx).With("step", step.Name, "index", step.Index)

	if err := runCtx.Err(); err != nil {
		if ctx.Err() == nil {
			return skipped(inst, step, reasonTimedOut), &TimeoutFailure{Instance: inst.Key(), Step: step.Name, Timeout: inst.Timeout, InstanceWide: true}
		}
		res := skipped(inst, step, reasonCancelled)
		res.Outcome = model.OutcomeCancelled
		return res, fmt.Errorf("instance %s: %w", inst.Key(), err)
	}

	if step.Skip {
		logger.Debug("Step skipped by condition.")
		return skipped(inst, step, reasonCondition), nil
	}
	for _, c := range step.Conditions {
		run, err := r.eval.Bool(c.Expr, state.scope(c.Scope), true)
		if err != nil {
			res := skipped(inst, step, reasonConditionErr)
			res.Outcome = model.OutcomeFailure
			return res, expr.WithSubject(err, fmt.Sprintf("%s: step %q condition", inst.Key(), step.Name))
		}
		if !run {
			logger.Debug("Step skipped by runtime condition.")
			return skipped(inst, step, reasonCondition), nil
		}
	}

	res := newResult(inst, step)
	w, ref, err := r.store.Open(r.runID, inst.Key(), step.Index, step.Name)
	if err != nil {
		logger.Warn("Step output will not be kept.", "error", err)
		w, ref = nil, ""
	}
	res.OutputRef = ref
	tail := storage.NewTail(r.tailLimit)
	var output io.Writer = tail
	if w != nil {
		output = io.MultiWriter(tail, w)
	}

	logger.Debug("Running step.")
	res.Started = time.Now()
	result, runErr := a.Run(runCtx, agent.Command{
		Script:  step.Command,
		Env:     r.environment(inst, step),
		Timeout: step.Timeout,
		Output:  output,
	})
	res.Duration = time.Since(res.Started)
	if w != nil {
		if err := w.Close(); err != nil {
			logger.Warn("Failed to close step output.", "error", err)
		}
	}
	res.Output = tail.String()
	res.ExitCode = result.ExitCode

	failure := r.classify(ctx, runCtx, inst, step, &res, result, runErr)
	if failure == nil {
		logger.Debug("Step succeeded.", "duration", res.Duration)
		return res, nil
	}
	if step.ContinueOnError && res.Outcome != model.OutcomeCancelled && !isInstanceTimeout(failure) {
		logger.Info("Step failed, continuing.", "error", failure)
		res.Tolerated = true
		return res, nil
	}
	return res, failure
}

// classify sets the outcome of a step that ran and returns its failure, if
// any.
func (r *StepRunner) classify(ctx, runCtx context.Context, inst *model.Instance, step *model.Step, res *model.StepResult, result agent.Result, runErr error) error {
	switch {
	case runErr == nil && result.ExitCode == 0:
		res.Outcome = model.OutcomeSuccess
		return nil
	case runErr == nil:
		res.Outcome = model.OutcomeFailure
		return &StepFailure{Instance: inst.Key(), Step: step.Name, ExitCode: result.ExitCode}
	case ctx.Err() != nil:
		res.Outcome = model.OutcomeCancelled
		res.Reason = reasonCancelled
		return fmt.Errorf("instance %s: step %q: %w", inst.Key(), step.Name, ctx.Err())
	case runCtx.Err() != nil:
		res.Outcome = model.OutcomeTimedOut
		res.Reason = reasonTimedOut
		return &TimeoutFailure{Instance: inst.Key(), Step: step.Name, Timeout: inst.Timeout, InstanceWide: true}
	case errors.Is(runErr, context.DeadlineExceeded) && step.Timeout > 0:
		res.Outcome = model.OutcomeTimedOut
		res.Reason = "step timed out"
		return &TimeoutFailure{Instance: inst.Key(), Step: step.Name, Timeout: step.Timeout}
	default:
		res.Outcome = model.OutcomeFailure
		res.Reason = runErr.Error()
		return &StepFailure{Instance: inst.Key(), Step: step.Name, ExitCode: result.ExitCode, Err: runErr}
	}
}

// environment merges the instance env, the step env and the built-in
// PIPEGRID_* variables, later ones winning.
func (r *StepRunner) environment(inst *model.Instance, step *model.Step) map[string]string {
	env := make(map[string]string, len(inst.Env)+len(step.Env)+5)
	maps.Copy(env, inst.Env)
	maps.Copy(env, step.Env)
	maps.Copy(env, map[string]string{
		"PIPEGRID_RUN_ID":     r.runID,
		"PIPEGRID_JOB":        inst.Job,
		"PIPEGRID_INSTANCE":   inst.Key(),
		"PIPEGRID_STEP":       step.Name,
		"PIPEGRID_STEP_INDEX": strconv.Itoa(step.Index),
	})
	return env
}

func isInstanceTimeout(err error) bool {
	var timeout *TimeoutFailure
	return errors.As(err, &timeout) && timeout.InstanceWide
}

func newResult(inst *model.Instance, step *model.Step) model.StepResult {
	return model.StepResult{
		Instance: inst.Key(),
		Index:    step.Index,
		ID:       step.ID,
		Name:     step.Name,
	}
}

func skipped(inst *model.Instance, step *model.Step, reason string) model.StepResult {
	res := newResult(inst, step)
	res.Outcome = model.OutcomeSkipped
	res.Reason = reason
	return res
}
