package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// redactedValue replaces secret parameter values in logs.
const redactedValue = "(sensitive)"

// ResolveParameters resolves pipeline parameters with the precedence
// pinned value > caller override > declared default. Overrides are raw
// strings parsed according to the declared type. A parameter left without
// any value, an override naming no declared parameter, or a value outside
// the allowed set is an *EvaluationError.
func (e *Evaluator) ResolveParameters(params []*config.Parameter, overrides map[string]string) (map[string]cty.Value, error) {
	declared := make(map[string]*config.Parameter, len(params))
	for _, p := range params {
		declared[p.Name] = p
	}
	if err := unknownNames(declared, keysOf(overrides), "override"); err != nil {
		return nil, err
	}

	empty := NewScope()
	out := make(map[string]cty.Value, len(params))
	for _, p := range params {
		var (
			val cty.Value
			err error
		)
		switch raw, overridden := overrides[p.Name]; {
		case p.Value != nil:
			val, err = e.Value(p.Value, empty)
		case overridden:
			val, err = e.parseOverride(p, raw)
		case p.Default != nil:
			val, err = e.Value(p.Default, empty)
		default:
			return nil, &EvaluationError{Subject: fmt.Sprintf("parameter %q", p.Name), Detail: "no value, override or default provided"}
		}
		if err != nil {
			return nil, WithSubject(err, fmt.Sprintf("parameter %q", p.Name))
		}
		if val, err = e.finalize(p, val, empty); err != nil {
			return nil, err
		}
		out[p.Name] = val
	}
	return out, nil
}

// BindArguments resolves template parameters against arguments supplied by
// the calling step. Arguments are evaluated in the caller's scope.
func (e *Evaluator) BindArguments(owner string, params []*config.Parameter, args []*config.Variable, caller Scope) (map[string]cty.Value, error) {
	declared := make(map[string]*config.Parameter, len(params))
	for _, p := range params {
		declared[p.Name] = p
	}
	argExprs := make(map[string]hcl.Expression, len(args))
	names := make([]string, 0, len(args))
	for _, a := range args {
		argExprs[a.Name] = a.Expr
		names = append(names, a.Name)
	}
	if err := unknownNames(declared, names, owner+" argument"); err != nil {
		return nil, err
	}

	empty := NewScope()
	out := make(map[string]cty.Value, len(params))
	for _, p := range params {
		subject := fmt.Sprintf("%s parameter %q", owner, p.Name)
		var (
			val cty.Value
			err error
		)
		argExpr, given := argExprs[p.Name]
		switch {
		case p.Value != nil:
			val, err = e.Value(p.Value, empty)
		case given:
			val, err = e.Value(argExpr, caller)
		case p.Default != nil:
			val, err = e.Value(p.Default, empty)
		default:
			return nil, &EvaluationError{Subject: subject, Detail: "no value, argument or default provided"}
		}
		if err != nil {
			return nil, WithSubject(err, subject)
		}
		if val, err = e.finalize(p, val, empty); err != nil {
			return nil, WithSubject(err, subject)
		}
		out[p.Name] = val
	}
	return out, nil
}

// Redacted renders resolved parameters for logging, hiding secrets.
func Redacted(params []*config.Parameter, values map[string]cty.Value) map[string]string {
	out := make(map[string]string, len(values))
	for _, p := range params {
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		if p.Secret {
			out[p.Name] = redactedValue
			continue
		}
		s, err := Stringify(v)
		if err != nil {
			s = v.GoString()
		}
		out[p.Name] = s
	}
	return out
}

// parseOverride turns a caller-supplied string into a value. Collection
// types are parsed as literal HCL. An untyped parameter is parsed only when
// it looks like a list, object or quoted string, so "1.70" and "007" stay
// strings.
func (e *Evaluator) parseOverride(p *config.Parameter, raw string) (cty.Value, error) {
	ty := paramType(p)
	if ty.IsPrimitiveType() {
		return cty.StringVal(raw), nil
	}
	if ty == cty.DynamicPseudoType && !looksLikeLiteral(raw) {
		return cty.StringVal(raw), nil
	}
	ex, diags := hclsyntax.ParseExpression([]byte(raw), "<override>", hcl.InitialPos)
	if diags.HasErrors() {
		if ty == cty.DynamicPseudoType {
			return cty.StringVal(raw), nil
		}
		return cty.NilVal, fromDiagnostics(hcl.Range{}, diags)
	}
	// No variables or functions: an override is data, not an expression.
	val, diags := ex.Value(nil)
	if diags.HasErrors() {
		if ty == cty.DynamicPseudoType {
			return cty.StringVal(raw), nil
		}
		return cty.NilVal, fromDiagnostics(ex.Range(), diags)
	}
	return val, nil
}

func looksLikeLiteral(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return trimmed != "" && strings.ContainsRune(`[{"`, rune(trimmed[0]))
}

// finalize converts val to the declared type and checks the allowed set.
func (e *Evaluator) finalize(p *config.Parameter, val cty.Value, scope Scope) (cty.Value, error) {
	subject := fmt.Sprintf("parameter %q", p.Name)
	ty := paramType(p)
	converted, err := convert.Convert(val, ty)
	if err != nil {
		return cty.NilVal, &EvaluationError{Subject: subject, Detail: fmt.Sprintf("value does not match type %s: %s", ty.FriendlyName(), err)}
	}

	if p.Values == nil {
		return converted, nil
	}
	allowed, err := e.Value(p.Values, scope)
	if err != nil {
		return cty.NilVal, WithSubject(err, subject+" allowed values")
	}
	if !allowed.CanIterateElements() {
		return cty.NilVal, &EvaluationError{Subject: subject, Detail: "allowed values must be a list"}
	}
	for it := allowed.ElementIterator(); it.Next(); {
		_, candidate := it.Element()
		if c, err := convert.Convert(candidate, converted.Type()); err == nil && c.Equals(converted).True() {
			return converted, nil
		}
	}
	shown, _ := Stringify(converted)
	if p.Secret {
		shown = redactedValue
	}
	return cty.NilVal, &EvaluationError{Subject: subject, Detail: fmt.Sprintf("value %q is not one of the allowed values", shown)}
}

func paramType(p *config.Parameter) cty.Type {
	if p.Type == cty.NilType {
		return cty.DynamicPseudoType
	}
	return p.Type
}

func unknownNames(declared map[string]*config.Parameter, names []string, what string) error {
	sort.Strings(names)
	for _, n := range names {
		if _, ok := declared[n]; !ok {
			return &EvaluationError{Subject: fmt.Sprintf("%s %q", what, n), Detail: "no such parameter is declared"}
		}
	}
	return nil
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
