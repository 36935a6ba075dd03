package expr

import (
	"slices"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// TraversalKey generates a stable, canonical string representation for an hcl.Traversal,
// suitable for use as a map key.
func TraversalKey(t hcl.Traversal) string {
	// e.g., matrix.os or steps.build.outcome
	return string(hclwrite.TokensForTraversal(t).Bytes())
}

// References walks through expressions to find all unique variable
// traversals and function calls. The returned slices are sorted to ensure a
// deterministic order.
func References(exprs ...hcl.Expression) ([]hcl.Traversal, []string) {
	traversals := make(map[string]hcl.Traversal)
	functions := make(map[string]struct{})

	for _, ex := range exprs {
		if ex == nil {
			continue
		}

		for _, traversal := range ex.Variables() {
			traversals[TraversalKey(traversal)] = traversal
		}

		// Variables() doesn't report function calls.
		if syntaxExpr, ok := ex.(hclsyntax.Expression); ok {
			walkForFunctions(syntaxExpr, functions)
		}
	}

	traversalKeys := make([]string, 0, len(traversals))
	for k := range traversals {
		traversalKeys = append(traversalKeys, k)
	}
	sort.Strings(traversalKeys)

	traversalSlice := make([]hcl.Traversal, 0, len(traversals))
	for _, k := range traversalKeys {
		traversalSlice = append(traversalSlice, traversals[k])
	}

	functionSlice := make([]string, 0, len(functions))
	for f := range functions {
		functionSlice = append(functionSlice, f)
	}
	sort.Strings(functionSlice)

	return traversalSlice, functionSlice
}

// Roots returns the sorted, unique root names referenced by the expressions.
func Roots(exprs ...hcl.Expression) []string {
	traversals, _ := References(exprs...)
	seen := make(map[string]struct{}, len(traversals))
	var roots []string
	for _, t := range traversals {
		name := t.RootName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		roots = append(roots, name)
	}
	sort.Strings(roots)
	return roots
}

// IsRuntime reports whether ex refers to a root that only exists while an
// instance is running.
func IsRuntime(ex hcl.Expression) bool {
	for _, root := range Roots(ex) {
		if slices.Contains(RuntimeRoots, root) {
			return true
		}
	}
	return false
}

// Check validates ex without evaluating it: every referenced root must be
// one of allowedRoots and every function must exist.
func (e *Evaluator) Check(ex hcl.Expression, allowedRoots ...string) error {
	if ex == nil {
		return nil
	}
	traversals, functions := References(ex)
	for _, t := range traversals {
		if !slices.Contains(allowedRoots, t.RootName()) {
			return errorf(t.SourceRange(), "reference to undefined root %q", t.RootName())
		}
	}
	for _, f := range functions {
		if _, ok := e.functions[f]; !ok {
			return errorf(ex.Range(), "call to unknown function %q", f)
		}
	}
	return nil
}

// walkForFunctions recursively walks the AST, looking only for function calls.
func walkForFunctions(ex hclsyntax.Expression, functions map[string]struct{}) {
	if ex == nil {
		return
	}
	switch e := ex.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, functions)
		walkForFunctions(e.KeyExpr, functions)
		walkForFunctions(e.ValExpr, functions)
		walkForFunctions(e.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, functions)
		walkForFunctions(e.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	}
}
