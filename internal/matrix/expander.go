package matrix

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/expr"
	"github.com/specialistvlad/pipegrid/internal/model"
	"github.com/zclconf/go-cty/cty"
)

// Expander turns the job templates of one definition into instances.
type Expander struct {
	def  *config.Definition
	eval *expr.Evaluator
}

// NewExpander creates an Expander for def.
func NewExpander(def *config.Definition, eval *expr.Evaluator) *Expander {
	return &Expander{def: def, eval: eval}
}

// BaseScope evaluates the global variables against the resolved parameters
// and returns the scope every job starts from.
func (x *Expander) BaseScope(params map[string]cty.Value) (expr.Scope, error) {
	scope := expr.NewScope().WithMap(expr.RootParameters, params)
	return x.evalVariables(x.def.Variables, scope, "pipeline")
}

// ExpandAll expands every job of the definition, in declaration order.
func (x *Expander) ExpandAll(ctx context.Context, params map[string]cty.Value) ([]*model.Job, error) {
	logger := ctxlog.FromContext(ctx)

	base, err := x.BaseScope(params)
	if err != nil {
		return nil, err
	}

	jobs := make([]*model.Job, 0, len(x.def.Jobs))
	total := 0
	for _, tpl := range x.def.Jobs {
		instances, err := x.Expand(ctx, tpl, base)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &model.Job{Template: tpl, Instances: instances})
		total += len(instances)
	}
	logger.Debug("Matrix expansion complete.", "jobs", len(jobs), "instances", total)
	return jobs, nil
}

// Expand produces the instances of a single job template.
func (x *Expander) Expand(ctx context.Context, tpl *config.JobTemplate, base expr.Scope) ([]*model.Instance, error) {
	logger := ctxlog.FromContext(ctx).With("job", tpl.ID)

	combos, err := x.combinations(tpl, base)
	if err != nil {
		return nil, err
	}
	logger.Debug("Matrix combinations resolved.", "count", len(combos))

	instances := make([]*model.Instance, 0, len(combos))
	seen := make(map[string]struct{}, len(combos))
	for _, c := range combos {
		inst, err := x.instance(tpl, c, base)
		if err != nil {
			return nil, err
		}
		key := inst.Key()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("job %q: duplicate matrix instance %q", tpl.ID, key)
		}
		seen[key] = struct{}{}
		instances = append(instances, inst)
	}
	return instances, nil
}

func (x *Expander) instance(tpl *config.JobTemplate, c combination, base expr.Scope) (*model.Instance, error) {
	addr := c.address(tpl.ID)
	subject := func(field string) string { return fmt.Sprintf("%s: %s", addr.String(), field) }

	scope := base.WithMap(expr.RootMatrix, c.matrixValues())
	scope, err := x.evalVariables(tpl.Variables, scope, addr.String())
	if err != nil {
		return nil, err
	}

	inst := &model.Instance{
		ID:   addr,
		Job:  tpl.ID,
		Pool: model.DefaultPool,
	}

	if expr.IsRuntime(tpl.Condition) {
		return nil, &expr.EvaluationError{Subject: subject("condition"), Range: tpl.Condition.Range(), Detail: "job conditions cannot reference step or job results"}
	}
	run, err := x.eval.Bool(tpl.Condition, scope, true)
	if err != nil {
		return nil, expr.WithSubject(err, subject("condition"))
	}
	inst.Skip = !run

	if inst.DisplayName, err = x.eval.String(tpl.DisplayName, scope); err != nil {
		return nil, expr.WithSubject(err, subject("name"))
	}
	if inst.DisplayName == "" {
		inst.DisplayName = addr.String()
	}

	if tpl.Pool != nil {
		if inst.Pool, err = x.eval.String(tpl.Pool, scope); err != nil {
			return nil, expr.WithSubject(err, subject("pool"))
		}
	}

	if inst.ContinueOnError, err = x.eval.Bool(tpl.ContinueOnError, scope, false); err != nil {
		return nil, expr.WithSubject(err, subject("continueOnError"))
	}
	if inst.Timeout, err = x.minutes(tpl.TimeoutMinutes, scope, subject("timeoutMinutes")); err != nil {
		return nil, err
	}

	env, err := environment(scope, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", addr.String(), err)
	}
	inst.Env = env

	if inst.Steps, err = x.steps(tpl.Steps, scope, addr.String()); err != nil {
		return nil, err
	}
	return inst, nil
}

// evalVariables evaluates vars in order, each one seeing the previous ones.
func (x *Expander) evalVariables(vars []*config.Variable, scope expr.Scope, owner string) (expr.Scope, error) {
	if len(vars) == 0 {
		return scope, nil
	}
	values := scope.Map(expr.RootVariables)
	for _, v := range vars {
		val, err := x.eval.Value(v.Expr, scope)
		if err != nil {
			return scope, expr.WithSubject(err, fmt.Sprintf("%s: variable %q", owner, v.Name))
		}
		values[v.Name] = val
		scope = scope.WithMap(expr.RootVariables, values)
	}
	return scope, nil
}

// minutes evaluates a timeout given in minutes. Zero means no timeout.
func (x *Expander) minutes(ex hcl.Expression, scope expr.Scope, subject string) (time.Duration, error) {
	n, err := x.eval.Int(ex, scope, 0)
	if err != nil {
		return 0, expr.WithSubject(err, subject)
	}
	if n < 0 {
		return 0, &expr.EvaluationError{Subject: subject, Range: ex.Range(), Detail: fmt.Sprintf("timeout must not be negative, got %d", n)}
	}
	return time.Duration(n) * time.Minute, nil
}
