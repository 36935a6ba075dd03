package expr

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// ParseExpression parses src as a native-syntax expression. line is the
// 1-based line src starts on in filename, for diagnostics.
func ParseExpression(src, filename string, line int) (hcl.Expression, error) {
	ex, diags := hclsyntax.ParseExpression([]byte(src), filename, startPos(line))
	if diags.HasErrors() {
		return nil, fromDiagnostics(hcl.Range{}, diags)
	}
	return ex, nil
}

// ParseTemplate parses src as a string template, e.g. "cargo +${matrix.channel} test".
func ParseTemplate(src, filename string, line int) (hcl.Expression, error) {
	ex, diags := hclsyntax.ParseTemplate([]byte(src), filename, startPos(line))
	if diags.HasErrors() {
		return nil, fromDiagnostics(hcl.Range{}, diags)
	}
	return ex, nil
}

// Literal wraps a constant value as an expression.
func Literal(v cty.Value) hcl.Expression {
	return &hclsyntax.LiteralValueExpr{Val: v}
}

func startPos(line int) hcl.Pos {
	if line < 1 {
		line = 1
	}
	return hcl.Pos{Line: line, Column: 1, Byte: 0}
}
