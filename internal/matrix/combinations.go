package matrix

import (
	"fmt"
	"strconv"

	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/expr"
	"github.com/specialistvlad/pipegrid/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// nameAttr labels object-valued axis entries.
const nameAttr = "name"

// binding is one axis of a combination.
type binding struct {
	axis  string
	label string
	value cty.Value
}

// combination is one point of the matrix, in axis declaration order.
type combination []binding

func (c combination) address(job string) nodeid.Address {
	bindings := make([]nodeid.Binding, 0, len(c))
	for _, b := range c {
		bindings = append(bindings, nodeid.Binding{Axis: b.axis, Label: b.label})
	}
	return nodeid.New(job, bindings...)
}

// matrixValues builds the `matrix` root: every axis bound to its value, and
// the attributes of object-valued entries flattened alongside, unless they
// collide with an axis name.
func (c combination) matrixValues() map[string]cty.Value {
	out := make(map[string]cty.Value, len(c))
	for _, b := range c {
		if !isObject(b.value) {
			continue
		}
		for it := b.value.ElementIterator(); it.Next(); {
			k, v := it.Element()
			out[k.AsString()] = v
		}
	}
	for _, b := range c {
		out[b.axis] = b.value
	}
	return out
}

func (c combination) matches(exclude map[string]string) bool {
	for axis, label := range exclude {
		found := false
		for _, b := range c {
			if b.axis == axis {
				found = b.label == label
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// combinations resolves the matrix of tpl into ordered combinations. A job
// without a matrix has exactly one, empty combination.
func (x *Expander) combinations(tpl *config.JobTemplate, scope expr.Scope) ([]combination, error) {
	if tpl.Matrix == nil {
		return []combination{{}}, nil
	}

	var out []combination
	for i, set := range tpl.Matrix.Sets {
		subject := fmt.Sprintf("job %q: matrix set %d", tpl.ID, i)

		include, err := x.eval.Bool(set.Guard, scope, true)
		if err != nil {
			return nil, expr.WithSubject(err, subject+" guard")
		}
		// A set without axes has no combinations to contribute.
		if !include || len(set.Axes) == 0 {
			continue
		}

		axisNames := make(map[string]struct{}, len(set.Axes))
		product := []combination{{}}
		for _, axis := range set.Axes {
			axisNames[axis.Name] = struct{}{}
			values, err := x.axisValues(axis, scope, subject)
			if err != nil {
				return nil, err
			}
			next := make([]combination, 0, len(product)*len(values))
			for _, prefix := range product {
				for _, v := range values {
					c := make(combination, len(prefix), len(prefix)+1)
					copy(c, prefix)
					next = append(next, append(c, v))
				}
			}
			product = next
		}

		for _, exclude := range set.Exclude {
			for axis := range exclude {
				if _, ok := axisNames[axis]; !ok {
					return nil, fmt.Errorf("%s: exclude names unknown axis %q", subject, axis)
				}
			}
		}

	nextCombination:
		for _, c := range product {
			for _, exclude := range set.Exclude {
				if c.matches(exclude) {
					continue nextCombination
				}
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func (x *Expander) axisValues(axis *config.Axis, scope expr.Scope, subject string) ([]binding, error) {
	subject = fmt.Sprintf("%s: axis %q", subject, axis.Name)

	val, err := x.eval.Value(axis.Values, scope)
	if err != nil {
		return nil, expr.WithSubject(err, subject)
	}
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
		return nil, &expr.EvaluationError{Subject: subject, Range: axis.Values.Range(), Detail: fmt.Sprintf("axis values must be a list, got %s", ty.FriendlyName())}
	}

	out := make([]binding, 0, val.LengthInt())
	labels := make(map[string]struct{}, val.LengthInt())
	i := 0
	for it := val.ElementIterator(); it.Next(); i++ {
		_, v := it.Element()
		label, err := labelOf(v, i)
		if err != nil {
			return nil, &expr.EvaluationError{Subject: subject, Range: axis.Values.Range(), Detail: err.Error()}
		}
		if !nodeid.ValidLabel(label) {
			return nil, &expr.EvaluationError{Subject: subject, Range: axis.Values.Range(), Detail: fmt.Sprintf("value %q cannot be used as an instance label", label)}
		}
		if _, dup := labels[label]; dup {
			return nil, &expr.EvaluationError{Subject: subject, Range: axis.Values.Range(), Detail: fmt.Sprintf("duplicate value %q", label)}
		}
		labels[label] = struct{}{}
		out = append(out, binding{axis: axis.Name, label: label, value: v})
	}
	return out, nil
}

// labelOf derives the identifier label of an axis entry: scalars label
// themselves, objects use their name attribute or, failing that, their
// position.
func labelOf(v cty.Value, index int) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("axis value %d is null", index)
	}
	if v.Type().IsPrimitiveType() {
		return expr.Stringify(v)
	}
	if isObject(v) {
		if name, ok := attr(v, nameAttr); ok && name.Type().IsPrimitiveType() {
			return expr.Stringify(name)
		}
		return strconv.Itoa(index), nil
	}
	return "", fmt.Errorf("axis value %d must be a scalar or an object, got %s", index, v.Type().FriendlyName())
}

func isObject(v cty.Value) bool {
	ty := v.Type()
	return !v.IsNull() && (ty.IsObjectType() || ty.IsMapType())
}

func attr(v cty.Value, name string) (cty.Value, bool) {
	ty := v.Type()
	switch {
	case ty.IsObjectType():
		if ty.HasAttribute(name) {
			return v.GetAttr(name), true
		}
	case ty.IsMapType():
		key := cty.StringVal(name)
		if v.HasIndex(key).True() {
			return v.Index(key), true
		}
	}
	return cty.NilVal, false
}

// environment renders the instance environment: variables first, then the
// matrix bindings. Object entries contribute their attributes plus the axis
// label.
func environment(scope expr.Scope, c combination) (map[string]string, error) {
	env := make(map[string]string)
	for name, v := range scope.Map(expr.RootVariables) {
		s, err := expr.Stringify(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		env[name] = s
	}
	for _, b := range c {
		if isObject(b.value) {
			for it := b.value.ElementIterator(); it.Next(); {
				k, v := it.Element()
				s, err := expr.Stringify(v)
				if err != nil {
					return nil, fmt.Errorf("matrix %q attribute %q: %w", b.axis, k.AsString(), err)
				}
				env[k.AsString()] = s
			}
		}
		env[b.axis] = b.label
	}
	return env, nil
}
