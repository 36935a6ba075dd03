package matrix

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/expr"
	"github.com/specialistvlad/pipegrid/internal/model"
)

// maxTemplateDepth bounds nested template references.
const maxTemplateDepth = 16

// maxDerivedNameLen bounds step names derived from commands, in runes.
const maxDerivedNameLen = 60

// steps flattens a step list into concrete steps, numbers them and checks
// that runtime conditions only refer to earlier steps.
func (x *Expander) steps(templates []*config.StepTemplate, scope expr.Scope, owner string) ([]*model.Step, error) {
	steps, err := x.flatten(templates, scope, owner, nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		s.Index = i
		for _, c := range s.Conditions {
			if err := checkStepReferences(c.Expr, seen, fmt.Sprintf("%s: step %q condition", owner, s.Name)); err != nil {
				return nil, err
			}
		}
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate step id %q after template expansion", owner, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return steps, nil
}

func (x *Expander) flatten(templates []*config.StepTemplate, scope expr.Scope, owner string, chain []string) ([]*model.Step, error) {
	var out []*model.Step
	for i, st := range templates {
		switch st.Kind {
		case config.StepKindTemplate:
			inner, err := x.include(st, scope, owner, chain)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		default:
			s, err := x.concrete(st, scope, fmt.Sprintf("%s: step %d", owner, i))
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// include expands a template reference in place.
func (x *Expander) include(st *config.StepTemplate, scope expr.Scope, owner string, chain []string) ([]*model.Step, error) {
	subject := fmt.Sprintf("%s: template %q", owner, st.Reference)

	tpl, ok := x.def.Templates[st.Reference]
	if !ok {
		return nil, fmt.Errorf("%s: no such template", subject)
	}
	next := append(slices.Clone(chain), st.Reference)
	if slices.Contains(chain, st.Reference) {
		return nil, fmt.Errorf("%s: template includes itself via %s", subject, strings.Join(next, " > "))
	}
	if len(chain) >= maxTemplateDepth {
		return nil, fmt.Errorf("%s: templates nested deeper than %d levels", subject, maxTemplateDepth)
	}

	args, err := x.eval.BindArguments(fmt.Sprintf("template %q", tpl.Name), tpl.Parameters, st.Parameters, scope)
	if err != nil {
		return nil, expr.WithSubject(err, subject)
	}

	skip, cond, err := x.condition(st.Condition, scope, subject)
	if err != nil {
		return nil, err
	}
	env, err := x.staticStringMap(st.Env, scope, subject+" env")
	if err != nil {
		return nil, err
	}

	inner, err := x.flatten(tpl.Steps, scope.WithMap(expr.RootParameters, args), subject, next)
	if err != nil {
		return nil, err
	}

	for _, s := range inner {
		s.Skip = s.Skip || skip
		if cond != nil {
			s.Conditions = append([]model.Condition{*cond}, s.Conditions...)
		}
		if len(env) > 0 {
			merged := maps.Clone(env)
			maps.Copy(merged, s.Env)
			s.Env = merged
		}
		if st.ContinueOnError != nil {
			if s.ContinueOnError, err = x.eval.Bool(st.ContinueOnError, scope, false); err != nil {
				return nil, expr.WithSubject(err, subject+" continueOnError")
			}
		}
		if st.TimeoutMinutes != nil && s.Timeout == 0 {
			if s.Timeout, err = x.minutes(st.TimeoutMinutes, scope, subject+" timeoutMinutes"); err != nil {
				return nil, err
			}
		}
	}
	return inner, nil
}

// concrete resolves a script step.
func (x *Expander) concrete(st *config.StepTemplate, scope expr.Scope, subject string) (*model.Step, error) {
	if expr.IsRuntime(st.Command) {
		return nil, &expr.EvaluationError{Subject: subject + " command", Range: st.Command.Range(), Detail: "commands cannot reference step or job results"}
	}
	command, err := x.eval.String(st.Command, scope)
	if err != nil {
		return nil, expr.WithSubject(err, subject+" command")
	}

	s := &model.Step{
		ID:      st.ID,
		Name:    stepName(st, command),
		Command: command,
	}

	if s.Env, err = x.staticStringMap(st.Env, scope, subject+" env"); err != nil {
		return nil, err
	}
	if s.ContinueOnError, err = x.eval.Bool(st.ContinueOnError, scope, false); err != nil {
		return nil, expr.WithSubject(err, subject+" continueOnError")
	}
	if s.Timeout, err = x.minutes(st.TimeoutMinutes, scope, subject+" timeoutMinutes"); err != nil {
		return nil, err
	}

	skip, cond, err := x.condition(st.Condition, scope, subject+" condition")
	if err != nil {
		return nil, err
	}
	s.Skip = skip
	if cond != nil {
		s.Conditions = []model.Condition{*cond}
	}
	return s, nil
}

// condition evaluates a static condition now, or captures a runtime one
// together with its scope.
func (x *Expander) condition(ex hcl.Expression, scope expr.Scope, subject string) (bool, *model.Condition, error) {
	if ex == nil {
		return false, nil, nil
	}
	if expr.IsRuntime(ex) {
		allowed := append(slices.Clone(expr.StaticRoots), expr.RuntimeRoots...)
		if err := x.eval.Check(ex, allowed...); err != nil {
			return false, nil, expr.WithSubject(err, subject)
		}
		return false, &model.Condition{Expr: ex, Scope: scope}, nil
	}
	run, err := x.eval.Bool(ex, scope, true)
	if err != nil {
		return false, nil, expr.WithSubject(err, subject)
	}
	return !run, nil, nil
}

func (x *Expander) staticStringMap(ex hcl.Expression, scope expr.Scope, subject string) (map[string]string, error) {
	if expr.IsRuntime(ex) {
		return nil, &expr.EvaluationError{Subject: subject, Range: ex.Range(), Detail: "env cannot reference step or job results"}
	}
	m, err := x.eval.StringMap(ex, scope)
	if err != nil {
		return nil, expr.WithSubject(err, subject)
	}
	return m, nil
}

// checkStepReferences rejects `steps.<id>` references to steps that do not
// run before the referencing one.
func checkStepReferences(ex hcl.Expression, earlier map[string]struct{}, subject string) error {
	traversals, _ := expr.References(ex)
	for _, t := range traversals {
		if t.RootName() != expr.RootSteps || len(t) < 2 {
			continue
		}
		attr, ok := t[1].(hcl.TraverseAttr)
		if !ok {
			continue
		}
		if _, ok := earlier[attr.Name]; !ok {
			return &expr.EvaluationError{
				Subject: subject,
				Range:   t.SourceRange(),
				Detail:  fmt.Sprintf("step %q is not defined before this step", attr.Name),
			}
		}
	}
	return nil
}

func stepName(st *config.StepTemplate, command string) string {
	if st.Name != "" {
		return st.Name
	}
	if st.ID != "" {
		return st.ID
	}
	line, _, _ := strings.Cut(strings.TrimSpace(command), "\n")
	if runes := []rune(line); len(runes) > maxDerivedNameLen {
		line = string(runes[:maxDerivedNameLen]) + "..."
	}
	return line
}
