package yaml_adapter

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/expr"
	"gopkg.in/yaml.v3"
)

type decoder struct {
	ctx  context.Context
	file string
}

// field is one key/value pair of a mapping node.
type field struct {
	key   string
	node  *yaml.Node
	value *yaml.Node
}

func (d *decoder) errorf(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", d.file, n.Line, fmt.Sprintf(format, args...))
}

// fields returns the pairs of a mapping. When known is non-empty, any other
// key is rejected.
func (d *decoder) fields(n *yaml.Node, what string, known ...string) ([]field, error) {
	n = resolve(n)
	if n.Kind != yaml.MappingNode {
		return nil, d.errorf(n, "%s must be a mapping", what)
	}
	out := make([]field, 0, len(n.Content)/2)
	seen := make(map[string]struct{}, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], resolve(n.Content[i+1])
		if len(known) > 0 && !slices.Contains(known, k.Value) {
			return nil, d.errorf(k, "unknown key %q in %s", k.Value, what)
		}
		if _, dup := seen[k.Value]; dup {
			return nil, d.errorf(k, "duplicate key %q in %s", k.Value, what)
		}
		seen[k.Value] = struct{}{}
		out = append(out, field{key: k.Value, node: k, value: v})
	}
	return out, nil
}

func (d *decoder) sequence(n *yaml.Node, what string) ([]*yaml.Node, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, "%s must be a list", what)
	}
	out := make([]*yaml.Node, len(n.Content))
	for i, item := range n.Content {
		out[i] = resolve(item)
	}
	return out, nil
}

func (d *decoder) str(n *yaml.Node, what string) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", d.errorf(n, "%s must be a string", what)
	}
	return n.Value, nil
}

func (d *decoder) boolean(n *yaml.Node, what string) (bool, error) {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!bool" {
		return false, d.errorf(n, "%s must be true or false", what)
	}
	return strconv.ParseBool(n.Value)
}

// strings accepts a single string or a list of strings.
func (d *decoder) strings(n *yaml.Node, what string) ([]string, error) {
	if n.Kind == yaml.ScalarNode {
		return []string{n.Value}, nil
	}
	items, err := d.sequence(n, what)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := d.str(item, what)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *decoder) definition(n *yaml.Node) (*config.Definition, error) {
	fields, err := d.fields(n, "definition", "name", "parameters", "variables", "templates", "jobs")
	if err != nil {
		return nil, err
	}
	def := &config.Definition{Templates: make(map[string]*config.Template)}
	for _, f := range fields {
		switch f.key {
		case "name":
			def.Name, err = d.str(f.value, "name")
		case "parameters":
			def.Parameters, err = d.parameters(f.value)
		case "variables":
			def.Variables, err = d.variables(f.value, "variables")
		case "templates":
			err = d.templates(f.value, def.Templates)
		case "jobs":
			def.Jobs, err = d.jobs(f.value)
		}
		if err != nil {
			return nil, err
		}
	}
	return def, nil
}

func (d *decoder) parameters(n *yaml.Node) ([]*config.Parameter, error) {
	items, err := d.sequence(n, "parameters")
	if err != nil {
		return nil, err
	}
	out := make([]*config.Parameter, 0, len(items))
	for _, item := range items {
		p, err := d.parameter(item)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (d *decoder) parameter(n *yaml.Node) (*config.Parameter, error) {
	fields, err := d.fields(n, "parameter", "name", "type", "description", "default", "value", "values", "secret")
	if err != nil {
		return nil, err
	}
	p := &config.Parameter{}
	for _, f := range fields {
		switch f.key {
		case "name":
			p.Name, err = d.str(f.value, "parameter name")
		case "type":
			var src string
			if src, err = d.str(f.value, "parameter type"); err == nil {
				if p.Type, err = expr.ParseType(d.ctx, src); err != nil {
					err = d.errorf(f.value, "%s", err)
				}
			}
		case "description":
			p.Description, err = d.str(f.value, "parameter description")
		case "default":
			p.Default, err = d.value(f.value)
		case "value":
			p.Value, err = d.value(f.value)
		case "values":
			p.Values, err = d.value(f.value)
		case "secret":
			p.Secret, err = d.boolean(f.value, "secret")
		}
		if err != nil {
			return nil, err
		}
	}
	if p.Name == "" {
		return nil, d.errorf(n, "parameter without a name")
	}
	return p, nil
}

// variables decodes an ordered mapping of named values.
func (d *decoder) variables(n *yaml.Node, what string) ([]*config.Variable, error) {
	fields, err := d.fields(n, what)
	if err != nil {
		return nil, err
	}
	out := make([]*config.Variable, 0, len(fields))
	for _, f := range fields {
		ex, err := d.value(f.value)
		if err != nil {
			return nil, err
		}
		out = append(out, &config.Variable{Name: f.key, Expr: ex})
	}
	return out, nil
}

func (d *decoder) templates(n *yaml.Node, into map[string]*config.Template) error {
	fields, err := d.fields(n, "templates")
	if err != nil {
		return err
	}
	for _, f := range fields {
		tf, err := d.fields(f.value, fmt.Sprintf("template %q", f.key), "parameters", "steps")
		if err != nil {
			return err
		}
		tpl := &config.Template{Name: f.key}
		for _, tff := range tf {
			switch tff.key {
			case "parameters":
				tpl.Parameters, err = d.parameters(tff.value)
			case "steps":
				tpl.Steps, err = d.steps(tff.value)
			}
			if err != nil {
				return err
			}
		}
		into[f.key] = tpl
	}
	return nil
}

// jobs accepts a list of jobs carrying an id, or a mapping keyed by id.
func (d *decoder) jobs(n *yaml.Node) ([]*config.JobTemplate, error) {
	var out []*config.JobTemplate
	if n.Kind == yaml.MappingNode {
		fields, err := d.fields(n, "jobs")
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			job, err := d.job(f.value, f.key)
			if err != nil {
				return nil, err
			}
			out = append(out, job)
		}
		return out, nil
	}

	items, err := d.sequence(n, "jobs")
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		job, err := d.job(item, "")
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

var jobKeys = []string{"id", "name", "pool", "if", "dependsOn", "matrix", "variables", "steps", "continueOnError", "timeoutMinutes"}

func (d *decoder) job(n *yaml.Node, id string) (*config.JobTemplate, error) {
	fields, err := d.fields(n, "job", jobKeys...)
	if err != nil {
		return nil, err
	}
	job := &config.JobTemplate{ID: id}
	for _, f := range fields {
		switch f.key {
		case "id":
			job.ID, err = d.str(f.value, "job id")
		case "name":
			job.DisplayName, err = d.value(f.value)
		case "pool":
			job.Pool, err = d.value(f.value)
		case "if":
			job.Condition, err = d.predicate(f.value)
		case "dependsOn":
			job.DependsOn, err = d.strings(f.value, "dependsOn")
		case "matrix":
			job.Matrix, err = d.matrix(f.value)
		case "variables":
			job.Variables, err = d.variables(f.value, "job variables")
		case "steps":
			job.Steps, err = d.steps(f.value)
		case "continueOnError":
			job.ContinueOnError, err = d.predicate(f.value)
		case "timeoutMinutes":
			job.TimeoutMinutes, err = d.value(f.value)
		}
		if err != nil {
			return nil, err
		}
	}
	if job.ID == "" {
		return nil, d.errorf(n, "job without an id")
	}
	return job, nil
}

// matrix accepts a mapping of axes, which is a single unguarded set, or a
// list of sets with optional if, axes and exclude keys.
func (d *decoder) matrix(n *yaml.Node) (*config.Matrix, error) {
	m := &config.Matrix{}
	if n.Kind == yaml.MappingNode {
		set, err := d.axisSet(n, false)
		if err != nil {
			return nil, err
		}
		if len(set.Axes) > 0 {
			m.Sets = append(m.Sets, set)
		}
		return m, nil
	}

	items, err := d.sequence(n, "matrix")
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		set, err := d.axisSet(item, true)
		if err != nil {
			return nil, err
		}
		m.Sets = append(m.Sets, set)
	}
	return m, nil
}

func (d *decoder) axisSet(n *yaml.Node, explicit bool) (*config.AxisSet, error) {
	set := &config.AxisSet{}
	if !explicit {
		fields, err := d.fields(n, "matrix")
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if f.key == "exclude" {
				if set.Exclude, err = d.excludes(f.value); err != nil {
					return nil, err
				}
				continue
			}
			ex, err := d.value(f.value)
			if err != nil {
				return nil, err
			}
			set.Axes = append(set.Axes, &config.Axis{Name: f.key, Values: ex})
		}
		return set, nil
	}

	fields, err := d.fields(n, "matrix set", "if", "axes", "exclude")
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		switch f.key {
		case "if":
			set.Guard, err = d.predicate(f.value)
		case "exclude":
			set.Exclude, err = d.excludes(f.value)
		case "axes":
			var axes []*config.Variable
			if axes, err = d.variables(f.value, "matrix axes"); err == nil {
				for _, a := range axes {
					set.Axes = append(set.Axes, &config.Axis{Name: a.Name, Values: a.Expr})
				}
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (d *decoder) excludes(n *yaml.Node) ([]map[string]string, error) {
	items, err := d.sequence(n, "exclude")
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(items))
	for _, item := range items {
		fields, err := d.fields(item, "exclude entry")
		if err != nil {
			return nil, err
		}
		entry := make(map[string]string, len(fields))
		for _, f := range fields {
			if entry[f.key], err = d.str(f.value, "exclude label"); err != nil {
				return nil, err
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (d *decoder) steps(n *yaml.Node) ([]*config.StepTemplate, error) {
	items, err := d.sequence(n, "steps")
	if err != nil {
		return nil, err
	}
	out := make([]*config.StepTemplate, 0, len(items))
	for _, item := range items {
		st, err := d.step(item)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

var stepKeys = []string{"id", "name", "script", "template", "parameters", "if", "env", "continueOnError", "timeoutMinutes"}

// step decodes a step. A bare string is shorthand for a script step.
func (d *decoder) step(n *yaml.Node) (*config.StepTemplate, error) {
	if n.Kind == yaml.ScalarNode {
		ex, err := d.value(n)
		if err != nil {
			return nil, err
		}
		return &config.StepTemplate{Kind: config.StepKindScript, Command: ex}, nil
	}

	fields, err := d.fields(n, "step", stepKeys...)
	if err != nil {
		return nil, err
	}
	st := &config.StepTemplate{}
	for _, f := range fields {
		switch f.key {
		case "id":
			st.ID, err = d.str(f.value, "step id")
		case "name":
			st.Name, err = d.str(f.value, "step name")
		case "script":
			st.Kind = config.StepKindScript
			st.Command, err = d.value(f.value)
		case "template":
			st.Kind = config.StepKindTemplate
			st.Reference, err = d.str(f.value, "template reference")
		case "parameters":
			st.Parameters, err = d.variables(f.value, "template arguments")
		case "if":
			st.Condition, err = d.predicate(f.value)
		case "env":
			st.Env, err = d.value(f.value)
		case "continueOnError":
			st.ContinueOnError, err = d.predicate(f.value)
		case "timeoutMinutes":
			st.TimeoutMinutes, err = d.value(f.value)
		}
		if err != nil {
			return nil, err
		}
	}

	switch {
	case st.Command != nil && st.Reference != "":
		return nil, d.errorf(n, "step has both script and template")
	case st.Command == nil && st.Reference == "":
		return nil, d.errorf(n, "step needs a script or a template")
	case st.Parameters != nil && st.Kind != config.StepKindTemplate:
		return nil, d.errorf(n, "parameters are only valid on template steps")
	}
	return st, nil
}

// resolve follows aliases to the node they point at.
func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}
