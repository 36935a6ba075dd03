package hcl_adapter

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/expr"
	"github.com/zclconf/go-cty/cty"
)

// isExprDefined checks if an HCL expression was actually present in the source
// code. The HCL decoder populates omitted optional fields with zero-width
// placeholder expressions, so a simple nil check is insufficient.
func isExprDefined(ctx context.Context, ex hcl.Expression, attrName string) bool {
	if ex == nil {
		return false
	}
	rng := ex.Range()
	isDefined := rng.End.Byte > rng.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName,
		"hcl_range", rng.String(),
		"is_defined", isDefined,
	)
	return isDefined
}

// defined returns ex, or nil when the attribute was omitted.
func defined(ctx context.Context, ex hcl.Expression, attrName string) hcl.Expression {
	if !isExprDefined(ctx, ex, attrName) {
		return nil
	}
	return ex
}

func (l *Loader) translateParameter(ctx context.Context, p *parameterBlock, owner string) (*config.Parameter, error) {
	param := &config.Parameter{
		Name:        p.Name,
		Description: p.Description,
		Type:        cty.DynamicPseudoType,
		Default:     defined(ctx, p.Default, "default"),
		Value:       defined(ctx, p.Value, "value"),
		Values:      defined(ctx, p.Values, "values"),
		Secret:      p.Secret,
	}
	if typeExpr := defined(ctx, p.Type, "type"); typeExpr != nil {
		ty, err := expr.TypeFromExpr(ctx, typeExpr)
		if err != nil {
			return nil, fmt.Errorf("%s: %s parameter %q: %w", typeExpr.Range().String(), owner, p.Name, err)
		}
		param.Type = ty
	}
	return param, nil
}

// translateAttributes turns a free-form block into variables, in source
// order so that later ones may refer to earlier ones.
func (l *Loader) translateAttributes(b *attributesBlock) ([]*config.Variable, error) {
	attrs, diags := b.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	list := make([]*hcl.Attribute, 0, len(attrs))
	for _, a := range attrs {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Range.Start.Byte < list[j].Range.Start.Byte
	})
	out := make([]*config.Variable, 0, len(list))
	for _, a := range list {
		out = append(out, &config.Variable{Name: a.Name, Expr: a.Expr})
	}
	return out, nil
}

func (l *Loader) translateTemplate(ctx context.Context, t *templateBlock) (*config.Template, error) {
	tpl := &config.Template{Name: t.Name}
	for _, p := range t.Parameters {
		param, err := l.translateParameter(ctx, p, fmt.Sprintf("template %q", t.Name))
		if err != nil {
			return nil, err
		}
		tpl.Parameters = append(tpl.Parameters, param)
	}
	steps, err := l.translateSteps(ctx, t.Steps)
	if err != nil {
		return nil, err
	}
	tpl.Steps = steps
	return tpl, nil
}

func (l *Loader) translateJob(ctx context.Context, j *jobBlock) (*config.JobTemplate, error) {
	logger := ctxlog.FromContext(ctx).With("job", j.ID)
	logger.Debug("Translating job block.")

	job := &config.JobTemplate{
		ID:              j.ID,
		DisplayName:     defined(ctx, j.Name, "name"),
		Pool:            defined(ctx, j.Pool, "pool"),
		Condition:       defined(ctx, j.Condition, "condition"),
		DependsOn:       j.DependsOn,
		ContinueOnError: defined(ctx, j.ContinueOnError, "continue_on_error"),
		TimeoutMinutes:  defined(ctx, j.TimeoutMinutes, "timeout_minutes"),
	}
	for _, v := range j.Variables {
		vars, err := l.translateAttributes(v)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", j.ID, err)
		}
		job.Variables = append(job.Variables, vars...)
	}

	if len(j.Matrix) > 0 {
		job.Matrix = &config.Matrix{}
		for _, m := range j.Matrix {
			set, err := l.translateMatrix(ctx, j.ID, m)
			if err != nil {
				return nil, err
			}
			job.Matrix.Sets = append(job.Matrix.Sets, set)
		}
	}

	steps, err := l.translateSteps(ctx, j.Steps)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", j.ID, err)
	}
	job.Steps = steps
	return job, nil
}

func (l *Loader) translateMatrix(ctx context.Context, jobID string, m *matrixBlock) (*config.AxisSet, error) {
	set := &config.AxisSet{Guard: defined(ctx, m.Condition, "condition")}
	for _, a := range m.Axes {
		set.Axes = append(set.Axes, &config.Axis{Name: a.Name, Values: a.Values})
	}

	ex := defined(ctx, m.Exclude, "exclude")
	if ex == nil {
		return set, nil
	}
	val, diags := ex.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("job %q: matrix exclude must be a literal list of objects: %w", jobID, diags)
	}
	if !val.CanIterateElements() {
		return nil, fmt.Errorf("%s: job %q: matrix exclude must be a list of objects", ex.Range().String(), jobID)
	}
	for it := val.ElementIterator(); it.Next(); {
		_, entry := it.Element()
		if !entry.Type().IsObjectType() && !entry.Type().IsMapType() {
			return nil, fmt.Errorf("%s: job %q: matrix exclude entries must be objects", ex.Range().String(), jobID)
		}
		labels := make(map[string]string)
		for eit := entry.ElementIterator(); eit.Next(); {
			k, v := eit.Element()
			s, err := expr.Stringify(v)
			if err != nil {
				return nil, fmt.Errorf("job %q: matrix exclude %q: %w", jobID, k.AsString(), err)
			}
			labels[k.AsString()] = s
		}
		set.Exclude = append(set.Exclude, labels)
	}
	return set, nil
}

func (l *Loader) translateSteps(ctx context.Context, blocks []*stepBlock) ([]*config.StepTemplate, error) {
	out := make([]*config.StepTemplate, 0, len(blocks))
	for i, b := range blocks {
		st := &config.StepTemplate{
			ID:              b.ID,
			Name:            b.Name,
			Condition:       defined(ctx, b.Condition, "condition"),
			Env:             defined(ctx, b.Env, "env"),
			ContinueOnError: defined(ctx, b.ContinueOnError, "continue_on_error"),
			TimeoutMinutes:  defined(ctx, b.TimeoutMinutes, "timeout_minutes"),
		}
		script := defined(ctx, b.Script, "script")
		switch {
		case script != nil && b.Template != "":
			return nil, fmt.Errorf("step %d has both script and template", i)
		case script != nil:
			st.Kind = config.StepKindScript
			st.Command = script
		case b.Template != "":
			st.Kind = config.StepKindTemplate
			st.Reference = b.Template
		default:
			return nil, fmt.Errorf("step %d needs a script or a template", i)
		}

		for _, p := range b.Parameters {
			if st.Kind != config.StepKindTemplate {
				return nil, fmt.Errorf("step %d: parameters are only valid on template steps", i)
			}
			args, err := l.translateAttributes(p)
			if err != nil {
				return nil, err
			}
			st.Parameters = append(st.Parameters, args...)
		}
		out = append(out, st)
	}
	return out, nil
}
