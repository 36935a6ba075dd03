package expr

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Scope root names.
const (
	RootParameters = "parameters"
	RootVariables  = "variables"
	RootMatrix     = "matrix"
	RootJob        = "job"
	RootSteps      = "steps"
)

// StaticRoots are available during expansion.
var StaticRoots = []string{RootParameters, RootVariables, RootMatrix}

// RuntimeRoots are only available while an instance is running.
var RuntimeRoots = []string{RootJob, RootSteps}

// Scope is an immutable set of root values. Methods that change it return
// a modified copy, so a Scope can be captured and evaluated later.
type Scope struct {
	roots map[string]cty.Value
}

// NewScope returns a scope where every static root is an empty object.
func NewScope() Scope {
	s := Scope{roots: make(map[string]cty.Value, len(StaticRoots))}
	for _, r := range StaticRoots {
		s.roots[r] = cty.EmptyObjectVal
	}
	return s
}

// With returns a copy of the scope with root set to val.
func (s Scope) With(root string, val cty.Value) Scope {
	next := Scope{roots: make(map[string]cty.Value, len(s.roots)+1)}
	for k, v := range s.roots {
		next.roots[k] = v
	}
	next.roots[root] = val
	return next
}

// WithMap returns a copy of the scope with root set to an object built from vals.
func (s Scope) WithMap(root string, vals map[string]cty.Value) Scope {
	return s.With(root, ObjectOf(vals))
}

// Get returns the value of a root.
func (s Scope) Get(root string) (cty.Value, bool) {
	v, ok := s.roots[root]
	return v, ok
}

// Map returns the attributes of an object-valued root.
func (s Scope) Map(root string) map[string]cty.Value {
	v, ok := s.roots[root]
	if !ok || v.IsNull() || !v.CanIterateElements() {
		return map[string]cty.Value{}
	}
	out := make(map[string]cty.Value, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		k, val := it.Element()
		out[k.AsString()] = val
	}
	return out
}

func (s Scope) evalContext(functions map[string]function.Function) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(s.roots))
	for k, v := range s.roots {
		vars[k] = v
	}
	return &hcl.EvalContext{Variables: vars, Functions: functions}
}

// ObjectOf builds a cty object from a map, returning an empty object for an
// empty or nil map.
func ObjectOf(vals map[string]cty.Value) cty.Value {
	if len(vals) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vals)
}
