package expr

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Evaluator evaluates expressions against a Scope. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	functions map[string]function.Function
}

// New creates an Evaluator with the standard function table.
func New() *Evaluator {
	return &Evaluator{functions: Functions()}
}

// Value evaluates ex in scope. A nil expression yields a null value.
func (e *Evaluator) Value(ex hcl.Expression, scope Scope) (cty.Value, error) {
	if ex == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	val, diags := ex.Value(scope.evalContext(e.functions))
	if diags.HasErrors() {
		return cty.NilVal, fromDiagnostics(ex.Range(), diags)
	}
	if !val.IsWhollyKnown() {
		return cty.NilVal, errorf(ex.Range(), "expression result is not fully known")
	}
	return val, nil
}

// Bool evaluates ex as a boolean predicate. A nil expression or a null
// result yields def.
func (e *Evaluator) Bool(ex hcl.Expression, scope Scope, def bool) (bool, error) {
	val, err := e.Value(ex, scope)
	if err != nil {
		return false, err
	}
	if val.IsNull() {
		return def, nil
	}
	b, convErr := convert.Convert(val, cty.Bool)
	if convErr != nil {
		return false, errorf(ex.Range(), "expected a bool, got %s", val.Type().FriendlyName())
	}
	return b.True(), nil
}

// String evaluates ex and converts the result to a string. A nil
// expression or a null result yields "".
func (e *Evaluator) String(ex hcl.Expression, scope Scope) (string, error) {
	val, err := e.Value(ex, scope)
	if err != nil {
		return "", err
	}
	if val.IsNull() {
		return "", nil
	}
	s, convErr := convert.Convert(val, cty.String)
	if convErr != nil {
		return "", errorf(ex.Range(), "expected a string, got %s", val.Type().FriendlyName())
	}
	return s.AsString(), nil
}

// Int evaluates ex as a whole number. A nil expression or a null result
// yields def.
func (e *Evaluator) Int(ex hcl.Expression, scope Scope, def int) (int, error) {
	val, err := e.Value(ex, scope)
	if err != nil {
		return 0, err
	}
	if val.IsNull() {
		return def, nil
	}
	num, convErr := convert.Convert(val, cty.Number)
	if convErr != nil {
		return 0, errorf(ex.Range(), "expected a number, got %s", val.Type().FriendlyName())
	}
	var n int
	if err := gocty.FromCtyValue(num, &n); err != nil {
		return 0, errorf(ex.Range(), "expected a whole number: %s", err)
	}
	return n, nil
}

// StringMap evaluates ex as an object or map and renders each attribute as
// a string. Collection attributes are JSON encoded.
func (e *Evaluator) StringMap(ex hcl.Expression, scope Scope) (map[string]string, error) {
	val, err := e.Value(ex, scope)
	if err != nil {
		return nil, err
	}
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, errorf(ex.Range(), "expected a map, got %s", ty.FriendlyName())
	}
	out := make(map[string]string, val.LengthInt())
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		s, err := Stringify(v)
		if err != nil {
			return nil, errorf(ex.Range(), "attribute %q: %s", k.AsString(), err)
		}
		out[k.AsString()] = s
	}
	return out, nil
}

// Stringify renders a value for use in an environment variable: primitives
// in their string form, null as "", everything else as JSON.
func Stringify(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", nil
	}
	if v.Type().IsPrimitiveType() {
		s, err := convert.Convert(v, cty.String)
		if err != nil {
			return "", err
		}
		return s.AsString(), nil
	}
	b, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
